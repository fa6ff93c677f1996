package capture

import (
	"context"
	"errors"
	"io"
	"log"

	"madrasa-audio/audio"
)

// Classified device acquisition failures. Callers surface these to the user
// and must not open the remote channel when Open fails.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no audio input device available")
)

// DefaultBufferSize is the fixed number of float samples per capture tick.
const DefaultBufferSize = 4096

// Stream delivers fixed-size buffers of float samples in [-1, 1] from an
// open microphone. Close must unblock a concurrent Read and release the
// underlying device.
type Stream interface {
	Read() ([]float32, error)
	Close() error
}

// Device acquires a microphone stream, prompting for permission if needed.
type Device interface {
	Open(ctx context.Context, sampleRate, bufferSize int) (Stream, error)
}

// Transport receives outbound base64 PCM16 chunks at the declared rate.
type Transport interface {
	SendAudioChunk(encoded string, sampleRate int) error
}

// Stage turns a live microphone stream into labeled PCM chunks on a
// transport. It holds the device open for its lifetime and releases it on
// every exit path.
type Stage struct {
	device     Device
	transport  Transport
	sampleRate int
	bufferSize int

	stream Stream
	done   chan struct{}
}

// NewStage creates a capture stage at the standard 16kHz capture rate.
func NewStage(device Device, transport Transport) *Stage {
	return &Stage{
		device:     device,
		transport:  transport,
		sampleRate: audio.CaptureRate,
		bufferSize: DefaultBufferSize,
		done:       make(chan struct{}),
	}
}

// Start acquires the microphone and begins forwarding chunks. A failed
// acquisition returns immediately (classified error) without touching the
// transport.
func (st *Stage) Start(ctx context.Context) error {
	stream, err := st.device.Open(ctx, st.sampleRate, st.bufferSize)
	if err != nil {
		return err
	}
	st.stream = stream
	go st.run(ctx)
	return nil
}

func (st *Stage) run(ctx context.Context) {
	defer close(st.done)
	defer st.stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		samples, err := st.stream.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Printf("🎤 capture read error: %v", err)
			}
			return
		}
		if len(samples) == 0 {
			continue
		}

		if err := st.transport.SendAudioChunk(audio.EncodeChunk(samples), st.sampleRate); err != nil {
			if ctx.Err() == nil {
				log.Printf("🎤 capture send error: %v", err)
			}
			return
		}
	}
}

// Stop releases the microphone and waits for the forwarding loop to exit.
// Safe to call even if Start failed.
func (st *Stage) Stop() {
	if st.stream == nil {
		return
	}
	st.stream.Close()
	<-st.done
}

// Done is closed once the forwarding loop has exited and the device is
// released.
func (st *Stage) Done() <-chan struct{} {
	return st.done
}
