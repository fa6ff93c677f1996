package messages

import "encoding/json"

// ClientMessage represents a message from a tutoring client
type ClientMessage struct {
	Type    string          `json:"type"` // "audio", "config", "control"
	Payload json.RawMessage `json:"payload"`
}

// AudioPayload contains one capture chunk from the client
type AudioPayload struct {
	Data       string `json:"data"` // Base64-encoded PCM16 audio
	SampleRate int    `json:"sampleRate,omitempty"`
}

// ConfigPayload contains session configuration
type ConfigPayload struct {
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "ping", "end_turn", "stop"
}
