package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"sync"

	"google.golang.org/genai"
)

const liveModelName = "models/gemini-2.5-flash-native-audio-preview-12-2025"

// Proxy manages one duplex connection to the Gemini Live API. The client
// sends base64 PCM16 mono @16kHz; the server answers with PCM16 mono @24kHz
// plus interruption and close signals, all surfaced through callbacks.
type Proxy struct {
	client  *genai.Client
	session *genai.Session

	// Callbacks for handling server messages. Set before StartReceiving.
	OnAudio         func(data []byte)       // Decoded audio bytes
	OnAudioRaw      func(base64Data string) // Raw base64 (avoids re-encoding)
	OnText          func(text string)
	OnTranscription func(text string) // Input-audio transcription fragments
	OnInterrupted   func()            // User barged in; flush pending playback
	OnComplete      func()
	OnToolCall      func(functionCalls []*genai.FunctionCall)
	OnClose         func() // Remote ended the session normally
	OnError         func(err error)

	mu     sync.RWMutex
	closed bool
}

// NewProxy creates a Gemini client ready to open live sessions.
func NewProxy(ctx context.Context, apiKey string) (*Proxy, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Proxy{client: client}, nil
}

// Setup establishes a live tutoring session with audio responses.
func (gp *Proxy) Setup(ctx context.Context, systemPrompt string, tools []*genai.Tool) error {
	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: systemPrompt},
			},
		},
		Tools: tools,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: "Kore",
				},
			},
		},
	}
	return gp.connect(ctx, config)
}

// SetupTranscription establishes a live session used only to transcribe the
// caller's speech. The model stays silent (text modality, no audio out); the
// transcript arrives through OnTranscription.
func (gp *Proxy) SetupTranscription(ctx context.Context, lang string) error {
	prompt := "You are a silent transcription relay. Never respond."
	if lang != "" {
		prompt = fmt.Sprintf("You are a silent transcription relay for %s speech. Never respond.", lang)
	}
	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"TEXT"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
		InputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	return gp.connect(ctx, config)
}

func (gp *Proxy) connect(ctx context.Context, config *genai.LiveConnectConfig) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return fmt.Errorf("proxy is closed")
	}

	session, err := gp.client.Live.Connect(ctx, liveModelName, config)
	if err != nil {
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}

	gp.session = session
	log.Printf("✅ Connected to Gemini Live (%s)", liveModelName)
	return nil
}

// StartReceiving begins listening for server messages until the session
// ends. Messages are dispatched strictly in arrival order from a single
// goroutine, which is what keeps interruption flushes ordered against frame
// scheduling downstream.
func (gp *Proxy) StartReceiving(ctx context.Context) {
	go func() {
		for {
			gp.mu.RLock()
			if gp.closed || gp.session == nil {
				gp.mu.RUnlock()
				return
			}
			session := gp.session
			gp.mu.RUnlock()

			resp, err := session.Receive()
			if err != nil {
				gp.mu.RLock()
				closed := gp.closed
				gp.mu.RUnlock()
				if closed {
					return
				}

				if err == io.EOF {
					if gp.OnClose != nil {
						gp.OnClose()
					}
					return
				}
				log.Printf("❌ Gemini receive error: %v", err)
				if gp.OnError != nil {
					gp.OnError(err)
				}
				return
			}

			gp.handleResponse(resp)
		}
	}()
}

func (gp *Proxy) handleResponse(resp *genai.LiveServerMessage) {
	if resp.ToolCall != nil && len(resp.ToolCall.FunctionCalls) > 0 {
		if gp.OnToolCall != nil {
			gp.OnToolCall(resp.ToolCall.FunctionCalls)
		}
	}

	sc := resp.ServerContent
	if sc == nil {
		return
	}

	// Interruption is dispatched before any audio in the same message, so a
	// flush can never run after frames from the new utterance are scheduled.
	if sc.Interrupted && gp.OnInterrupted != nil {
		gp.OnInterrupted()
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" && gp.OnTranscription != nil {
		gp.OnTranscription(sc.InputTranscription.Text)
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.Text != "" && gp.OnText != nil {
				gp.OnText(part.Text)
			}
			if part.InlineData != nil {
				if gp.OnAudioRaw != nil {
					gp.OnAudioRaw(base64.StdEncoding.EncodeToString(part.InlineData.Data))
				} else if gp.OnAudio != nil {
					gp.OnAudio(part.InlineData.Data)
				}
			}
		}
	}

	if sc.TurnComplete && gp.OnComplete != nil {
		gp.OnComplete()
	}
}

// SendAudio forwards a PCM16 @16kHz chunk to Gemini.
func (gp *Proxy) SendAudio(audioData []byte) error {
	return gp.sendRealtimeInput(audioData)
}

// SendAudioBase64 forwards a base64-encoded chunk to Gemini.
func (gp *Proxy) SendAudioBase64(encodedAudio string) error {
	data, err := base64.StdEncoding.DecodeString(encodedAudio)
	if err != nil {
		return fmt.Errorf("invalid base64: %w", err)
	}
	return gp.sendRealtimeInput(data)
}

// SendAudioBatch sends a complete recorded utterance followed by the
// end-of-stream marker so the model responds immediately.
func (gp *Proxy) SendAudioBatch(audioData []byte) error {
	if len(audioData) == 0 {
		return nil
	}
	if err := gp.sendRealtimeInput(audioData); err != nil {
		return fmt.Errorf("failed to send audio batch: %w", err)
	}
	return gp.sendAudioStreamEnd()
}

// SendText sends a text turn to Gemini (used by the text test client).
func (gp *Proxy) SendText(text string) error {
	gp.mu.RLock()
	session := gp.session
	closed := gp.closed
	gp.mu.RUnlock()

	if closed || session == nil {
		return fmt.Errorf("proxy is closed or not connected")
	}

	turnComplete := true
	err := session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			},
		},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

func (gp *Proxy) sendRealtimeInput(data []byte) error {
	gp.mu.RLock()
	session := gp.session
	closed := gp.closed
	gp.mu.RUnlock()

	if closed || session == nil {
		return fmt.Errorf("proxy is closed or not connected")
	}

	err := session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: "audio/pcm;rate=16000",
			Data:     data,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (gp *Proxy) sendAudioStreamEnd() error {
	gp.mu.RLock()
	session := gp.session
	closed := gp.closed
	gp.mu.RUnlock()

	if closed || session == nil {
		return fmt.Errorf("proxy is closed or not connected")
	}

	err := session.SendRealtimeInput(genai.LiveRealtimeInput{
		AudioStreamEnd: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send audio stream end: %w", err)
	}
	return nil
}

// SendToolResponse returns function call results to Gemini.
func (gp *Proxy) SendToolResponse(responses []*genai.FunctionResponse) error {
	gp.mu.RLock()
	session := gp.session
	closed := gp.closed
	gp.mu.RUnlock()

	if closed || session == nil {
		return fmt.Errorf("proxy is closed or not connected")
	}

	err := session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	return nil
}

// Close terminates the live connection.
func (gp *Proxy) Close() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return nil
	}
	gp.closed = true

	if gp.session != nil {
		return gp.session.Close()
	}
	return nil
}
