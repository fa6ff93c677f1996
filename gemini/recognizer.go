package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"madrasa-audio/capture"
	"madrasa-audio/dictation"
)

// LiveRecognizer is one disposable speech-to-text sub-session backed by a
// Live transcription connection. The remote side ends sessions on its own
// (idle timeout, connection limits), which is exactly the self-terminating
// shape the dictation controller is built around.
type LiveRecognizer struct {
	apiKey string
	device capture.Device

	mu         sync.Mutex
	proxy      *Proxy
	stage      *capture.Stage
	cancel     context.CancelFunc
	transcript strings.Builder
	stopped    bool
}

// NewLiveRecognizer creates a recognizer sub-session reading from the given
// capture device.
func NewLiveRecognizer(apiKey string, device capture.Device) *LiveRecognizer {
	return &LiveRecognizer{apiKey: apiKey, device: device}
}

// RecognizerFactory returns a dictation-compatible factory producing fresh
// live sub-sessions.
func RecognizerFactory(apiKey string, device capture.Device) func() (dictation.Recognizer, error) {
	return func() (dictation.Recognizer, error) {
		return NewLiveRecognizer(apiKey, device), nil
	}
}

// proxyTransport adapts the capture stage's outbound chunks onto a live
// session.
type proxyTransport struct {
	proxy *Proxy
}

func (t *proxyTransport) SendAudioChunk(encoded string, sampleRate int) error {
	return t.proxy.SendAudioBase64(encoded)
}

// Start opens the transcription session and the microphone, then streams
// until Stop or natural termination. Events fire from the session's receive
// goroutine, never from inside Start.
func (lr *LiveRecognizer) Start(ctx context.Context, lang string, ev dictation.Events) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.stopped {
		return fmt.Errorf("recognizer already stopped")
	}

	proxy, err := NewProxy(ctx, lr.apiKey)
	if err != nil {
		return classifyRecognizerErr(err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	if err := proxy.SetupTranscription(sessionCtx, lang); err != nil {
		cancel()
		proxy.Close()
		return classifyRecognizerErr(err)
	}

	proxy.OnTranscription = func(text string) {
		lr.mu.Lock()
		lr.transcript.WriteString(text)
		accumulated := lr.transcript.String()
		lr.mu.Unlock()
		ev.OnResult(strings.TrimSpace(accumulated))
	}
	proxy.OnClose = func() {
		lr.teardown()
		ev.OnEnd()
	}
	proxy.OnError = func(err error) {
		lr.teardown()
		ev.OnError(classifyRecognizerErr(err))
	}

	stage := capture.NewStage(lr.device, &proxyTransport{proxy: proxy})
	if err := stage.Start(sessionCtx); err != nil {
		cancel()
		proxy.Close()
		return classifyRecognizerErr(err)
	}

	lr.proxy = proxy
	lr.stage = stage
	lr.cancel = cancel
	proxy.StartReceiving(sessionCtx)

	log.Printf("🗣️ Transcription sub-session started (%s)", lang)
	return nil
}

// Stop ends the sub-session: microphone released, session closed. Events
// stop firing after this returns.
func (lr *LiveRecognizer) Stop() error {
	lr.teardown()
	return nil
}

func (lr *LiveRecognizer) teardown() {
	lr.mu.Lock()
	if lr.stopped {
		lr.mu.Unlock()
		return
	}
	lr.stopped = true
	proxy := lr.proxy
	stage := lr.stage
	cancel := lr.cancel
	lr.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stage != nil {
		stage.Stop()
	}
	if proxy != nil {
		proxy.Close()
	}
}

// classifyRecognizerErr maps low-level failures onto the dictation error
// classes so the controller can pick the right user-facing message.
func classifyRecognizerErr(err error) error {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return fmt.Errorf("%w: %v", dictation.ErrPermissionDenied, err)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fmt.Errorf("%w: %v", dictation.ErrUnsupported, err)
	default:
		return fmt.Errorf("%w: %v", dictation.ErrNetwork, err)
	}
}
