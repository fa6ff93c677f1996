package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"madrasa-audio/audio"
)

// scriptDevice feeds a fixed sequence of buffers, then EOF.
type scriptDevice struct {
	buffers [][]float32
	openErr error
	stream  *scriptStream
}

func (d *scriptDevice) Open(ctx context.Context, sampleRate, bufferSize int) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.stream = &scriptStream{buffers: d.buffers, unblock: make(chan struct{})}
	return d.stream, nil
}

type scriptStream struct {
	mu      sync.Mutex
	buffers [][]float32
	closed  bool
	unblock chan struct{}
	closes  int
}

func (s *scriptStream) Read() ([]float32, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if len(s.buffers) == 0 {
		s.mu.Unlock()
		// Block like a real device with no input until closed.
		<-s.unblock
		return nil, io.EOF
	}
	buf := s.buffers[0]
	s.buffers = s.buffers[1:]
	s.mu.Unlock()
	return buf, nil
}

func (s *scriptStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if !s.closed {
		s.closed = true
		close(s.unblock)
	}
	return nil
}

type recordTransport struct {
	mu     sync.Mutex
	chunks []string
	rates  []int
	err    error
}

func (rt *recordTransport) SendAudioChunk(encoded string, sampleRate int) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.err != nil {
		return rt.err
	}
	rt.chunks = append(rt.chunks, encoded)
	rt.rates = append(rt.rates, sampleRate)
	return nil
}

func (rt *recordTransport) snapshot() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.chunks...)
}

func waitDone(t *testing.T, st *Stage) {
	t.Helper()
	select {
	case <-st.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture stage did not stop")
	}
}

func TestStageForwardsChunksInOrder(t *testing.T) {
	dev := &scriptDevice{buffers: [][]float32{{0.5, -0.5}, {0.25}}}
	tr := &recordTransport{}
	st := NewStage(dev, tr)

	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer st.Stop()

	want := []string{
		audio.EncodeChunk([]float32{0.5, -0.5}),
		audio.EncodeChunk([]float32{0.25}),
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := tr.snapshot()
		if len(got) == len(want) {
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("chunk %d: got %q, want %q", i, got[i], want[i])
				}
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d chunks, got %d", len(want), len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}

	tr.mu.Lock()
	for i, r := range tr.rates {
		if r != audio.CaptureRate {
			t.Errorf("chunk %d rate: got %d, want %d", i, r, audio.CaptureRate)
		}
	}
	tr.mu.Unlock()
}

func TestStageOpenFailureDoesNotTouchTransport(t *testing.T) {
	dev := &scriptDevice{openErr: ErrPermissionDenied}
	tr := &recordTransport{}
	st := NewStage(dev, tr)

	err := st.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(tr.snapshot()) != 0 {
		t.Error("transport was used despite failed acquisition")
	}
	// Stop after a failed Start must not hang or panic.
	st.Stop()
}

func TestStageStopReleasesDevice(t *testing.T) {
	dev := &scriptDevice{}
	st := NewStage(dev, &recordTransport{})

	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	st.Stop()
	waitDone(t, st)

	dev.stream.mu.Lock()
	defer dev.stream.mu.Unlock()
	if !dev.stream.closed {
		t.Error("device stream left open after Stop")
	}
}

func TestStageReleasesDeviceOnSendError(t *testing.T) {
	dev := &scriptDevice{buffers: [][]float32{{0.1}, {0.2}}}
	tr := &recordTransport{err: errors.New("channel closed")}
	st := NewStage(dev, tr)

	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, st)

	dev.stream.mu.Lock()
	defer dev.stream.mu.Unlock()
	if !dev.stream.closed {
		t.Error("device stream left open after transport failure")
	}
}
