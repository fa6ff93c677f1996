// Live tutoring client: streams the microphone to the server and plays the
// tutor's voice through sox. Barge-in works end to end: when the server
// reports an interruption, pending playback is flushed immediately.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"madrasa-audio/audio"
	"madrasa-audio/capture"
	"madrasa-audio/messages"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// soxSink plays scheduled frames through a sox subprocess. Frames arrive in
// start order, so writing them sequentially to sox's stdin preserves the
// gapless timeline. Flush kills and restarts sox, dropping whatever it had
// buffered.
type soxSink struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
}

func newSoxSink() (*soxSink, error) {
	s := &soxSink{}
	if err := s.spawnLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *soxSink) spawnLocked() error {
	cmd := exec.Command("sox",
		"-q",
		"-t", "raw",
		"-r", fmt.Sprint(audio.PlaybackRate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("sox stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sox start (is sox installed?): %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

func (s *soxSink) killLocked() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.stdin = nil
}

func (s *soxSink) Play(f audio.Frame, at time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stdin == nil {
		return nil
	}
	_, err := s.stdin.Write(f.Data)
	return err
}

func (s *soxSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.killLocked()
	return s.spawnLocked()
}

func (s *soxSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.killLocked()
}

// inbound mirrors the server's message envelope with the payload left raw.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wsTransport sends capture chunks to the server as JSON audio messages.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) SendAudioChunk(encoded string, sampleRate int) error {
	payload, err := sonic.Marshal(messages.AudioPayload{Data: encoded, SampleRate: sampleRate})
	if err != nil {
		return err
	}
	msg, err := sonic.Marshal(messages.ClientMessage{Type: "audio", Payload: payload})
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "WebSocket server URL")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)
	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Println("✅ Connected!")

	sink, err := newSoxSink()
	if err != nil {
		log.Fatalf("Failed to create audio player: %v", err)
	}
	defer sink.Close()

	sched := audio.NewScheduler(audio.NewClock(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Microphone -> server
	stage := capture.NewStage(capture.SoxDevice{}, &wsTransport{conn: conn})
	if err := stage.Start(ctx); err != nil {
		log.Fatalf("Failed to open microphone: %v", err)
	}
	defer stage.Stop()
	log.Println("🎤 Microphone live. Speak to the tutor; interrupt it any time.")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})

	// Server -> speaker
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg inbound
			if err := sonic.Unmarshal(message, &msg); err != nil {
				log.Println("Parse error:", err)
				continue
			}

			switch msg.Type {
			case messages.TypeAudio:
				var payload messages.AudioResponsePayload
				if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
					continue
				}
				pcm, err := audio.DecodeChunk(payload.Data)
				if err != nil {
					log.Println("Audio decode error:", err)
					continue
				}
				frame := audio.Frame{
					Data:       pcm,
					SampleRate: audio.PlaybackRate,
					Channels:   1,
				}
				if _, err := sched.Schedule(frame, nil); err != nil {
					log.Println("Schedule error:", err)
				}

			case messages.TypeText:
				var payload messages.TextResponsePayload
				sonic.Unmarshal(msg.Payload, &payload)
				fmt.Printf("📝 %s\n", payload.Text)

			case messages.TypeStatus:
				var payload messages.StatusPayload
				sonic.Unmarshal(msg.Payload, &payload)
				switch payload.Status {
				case messages.StatusInterrupted:
					// Drop everything not yet played; the timeline resets to now
					// so the tutor's next words start immediately.
					sched.Flush()
					log.Println("✋ Interrupted, playback flushed")
				case messages.StatusTurnComplete:
					log.Println("--- Turn complete ---")
				case messages.StatusDisconnected:
					log.Println("🔌 Server ended the session")
					return
				default:
					log.Printf("📊 Status: %s %s", payload.Status, payload.Message)
				}

			case messages.TypeError:
				log.Printf("❌ Error: %s", string(msg.Payload))
			}
		}
	}()

	select {
	case <-interrupt:
		log.Println("Interrupted, closing...")
		cancel()
		stage.Stop()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	case <-done:
	}
}
