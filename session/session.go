package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"madrasa-audio/gemini"
	"madrasa-audio/messages"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
)

// ClientSession represents a single student's live tutoring connection.
// Conversational audio is streamed to Gemini as it arrives (Gemini does its
// own voice activity detection); recitation-audit audio is buffered and sent
// as one batch on end_turn.
type ClientSession struct {
	ID           string
	ClientConn   *websocket.Conn
	GeminiProxy  *gemini.Proxy
	AudioBuffer  *AudioBuffer
	CreatedAt    time.Time
	LastActivity time.Time

	// CustomRules reads the student's saved Tajweed rules for tool calls.
	CustomRules func() string

	// Use channels for non-blocking writes
	writeChan chan any

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClientSession creates a session with a live Gemini connection
func NewClientSession(ctx context.Context, id string, clientConn *websocket.Conn, geminiKey string, systemPrompt string, maxBufferSize int, tools []*genai.Tool) (*ClientSession, error) {
	proxy, err := gemini.NewProxy(ctx, geminiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini proxy: %w", err)
	}

	if err := proxy.Setup(ctx, systemPrompt, tools); err != nil {
		proxy.Close()
		return nil, fmt.Errorf("failed to setup Gemini session: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	clientConn.SetReadLimit(512 * 1024) // 512KB max message
	clientConn.EnableWriteCompression(true)
	clientConn.SetCompressionLevel(6)

	session := &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		GeminiProxy:  proxy,
		AudioBuffer:  NewAudioBuffer(maxBufferSize),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		writeChan:    make(chan any, writeBufferSize),
		CloseChan:    make(chan struct{}),
		ctx:          sessionCtx,
		cancel:       cancel,
	}

	return session, nil
}

// Start begins the bidirectional message handling
func (cs *ClientSession) Start() {
	go cs.writePump()
	cs.setupGeminiCallbacks()
	cs.GeminiProxy.StartReceiving(cs.ctx)
	cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusConnected, "Session established"))
	go cs.handleClientMessages()
}

func (cs *ClientSession) setupGeminiCallbacks() {
	cs.GeminiProxy.OnAudioRaw = func(base64Data string) {
		cs.queueMessage(messages.NewAudioMessage(cs.ID, base64Data))
	}

	cs.GeminiProxy.OnText = func(text string) {
		cs.queueMessage(messages.NewTextMessage(cs.ID, text))
	}

	// The interruption status must reach the client before any audio from the
	// model's next utterance; the single write pump preserves that order.
	cs.GeminiProxy.OnInterrupted = func() {
		log.Printf("✋ [%s] Student interrupted the tutor", cs.ID[:8])
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusInterrupted, ""))
	}

	cs.GeminiProxy.OnComplete = func() {
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusTurnComplete, ""))
	}

	cs.GeminiProxy.OnClose = func() {
		log.Printf("🔌 [%s] Gemini ended the session", cs.ID[:8])
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusDisconnected, "Tutor session ended"))
		cs.Close()
	}

	cs.GeminiProxy.OnError = func(err error) {
		log.Printf("❌ [%s] Gemini error: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) ||
			websocket.IsUnexpectedCloseError(err) {
			log.Printf("🔌 [%s] Closing session due to Gemini connection error", cs.ID[:8])
			cs.Close()
		}
	}

	cs.GeminiProxy.OnToolCall = func(functionCalls []*genai.FunctionCall) {
		cs.handleToolCalls(functionCalls)
	}
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	defer func() {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return
		case msg, ok := <-cs.writeChan:
			if !ok {
				return
			}

			if err := cs.writeMessage(msg); err != nil {
				return
			}

			// Drain whatever accumulated while the last write was in flight.
			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				select {
				case msg, ok := <-cs.writeChan:
					if !ok {
						return
					}
					if err := cs.writeMessage(msg); err != nil {
						return
					}
				default:
				}
			}
		}
	}
}

func (cs *ClientSession) writeMessage(msg any) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cs.ClientConn.WriteMessage(websocket.TextMessage, data)
}

// queueMessage adds a message to the write queue (non-blocking)
func (cs *ClientSession) queueMessage(msg any) {
	cs.mu.RLock()
	closed := cs.closed
	cs.mu.RUnlock()
	if closed {
		return
	}
	select {
	case cs.writeChan <- msg:
		cs.mu.Lock()
		cs.LastActivity = time.Now()
		cs.mu.Unlock()
	default:
		// Queue full, drop message (shouldn't happen with proper sizing)
	}
}

// Close terminates the session and cleans up resources
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.mu.Unlock()

	cs.cancel()

	// Close the write channel first to stop writePump
	close(cs.writeChan)
	close(cs.CloseChan)

	if cs.AudioBuffer != nil {
		cs.AudioBuffer.Clear()
	}

	if cs.GeminiProxy != nil {
		cs.GeminiProxy.Close()
	}

	if cs.ClientConn != nil {
		cs.ClientConn.Close()
	}

	return nil
}

func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			messageType, message, err := cs.ClientConn.ReadMessage()
			if err != nil {
				return
			}

			cs.mu.Lock()
			cs.LastActivity = time.Now()
			cs.mu.Unlock()

			// Binary messages carry recitation-audit audio: buffered until the
			// client ends its turn.
			if messageType == websocket.BinaryMessage {
				if err := cs.AudioBuffer.Append(message); err != nil {
					cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeBufferFull,
						fmt.Sprintf("Audio buffer full (max %d bytes)", cs.AudioBuffer.MaxSize())))
				}
				continue
			}

			var clientMsg messages.ClientMessage
			if err := sonic.Unmarshal(message, &clientMsg); err != nil {
				cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid message format"))
				continue
			}

			cs.processClientMessage(&clientMsg)
		}
	}
}

func (cs *ClientSession) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case "audio":
		// Conversational audio streams straight through; Gemini's VAD decides
		// turn boundaries and interruptions.
		var payload messages.AudioPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid audio payload"))
			return
		}
		if err := cs.GeminiProxy.SendAudioBase64(payload.Data); err != nil {
			log.Printf("❌ [%s] Failed to stream audio to Gemini: %v", cs.ID[:8], err)
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
		}

	case "audio_buffered":
		// Recitation-audit audio over JSON: decoded and buffered like binary.
		var payload messages.AudioPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid audio payload"))
			return
		}
		audioBytes, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid base64 audio data"))
			return
		}
		if err := cs.AudioBuffer.Append(audioBytes); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeBufferFull,
				fmt.Sprintf("Audio buffer full (max %d bytes)", cs.AudioBuffer.MaxSize())))
		}

	case "control":
		var payload messages.ControlPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return
		}
		cs.handleControlMessage(&payload)

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
	}
}

func (cs *ClientSession) handleControlMessage(payload *messages.ControlPayload) {
	switch payload.Action {
	case "ping":
		cs.queueMessage(messages.NewStatusMessage(cs.ID, "pong", ""))
	case "end_turn":
		cs.handleEndTurn()
	case "stop":
		log.Printf("🛑 [%s] Client requested stop", cs.ID[:8])
		cs.Close()
	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
}

// handleEndTurn flushes the buffered recitation and sends it as one batch
func (cs *ClientSession) handleEndTurn() {
	if cs.AudioBuffer.IsEmpty() {
		log.Printf("⚠️ [%s] end_turn received but buffer is empty, ignoring", cs.ID[:8])
		return
	}
	chunkCount := cs.AudioBuffer.ChunkCount()

	audioData := cs.AudioBuffer.Flush()
	log.Printf("📤 [%s] Sending batch audio to Gemini: %d bytes (%d chunks)", cs.ID[:8], len(audioData), chunkCount)

	if err := cs.GeminiProxy.SendAudioBatch(audioData); err != nil {
		log.Printf("❌ [%s] Failed to send audio to Gemini: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// handleToolCalls processes function calls from Gemini and sends responses
func (cs *ClientSession) handleToolCalls(functionCalls []*genai.FunctionCall) {
	var responses []*genai.FunctionResponse

	for _, fc := range functionCalls {
		log.Printf("🔧 [%s] Function call: %s (id: %s)", cs.ID[:8], fc.Name, fc.ID)

		var response map[string]any

		switch fc.Name {
		case "GetCustomTajweedRules":
			rules := ""
			if cs.CustomRules != nil {
				rules = cs.CustomRules()
			}
			response = map[string]any{"output": rules}
			log.Printf("🔧 [%s] Returning custom Tajweed rules (%d chars)", cs.ID[:8], len(rules))

		default:
			response = map[string]any{"error": fmt.Sprintf("Unknown function: %s", fc.Name)}
			log.Printf("⚠️ [%s] Unknown function called: %s", cs.ID[:8], fc.Name)
		}

		responses = append(responses, &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: response,
		})
	}

	if err := cs.GeminiProxy.SendToolResponse(responses); err != nil {
		log.Printf("❌ [%s] Failed to send tool response: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
}
