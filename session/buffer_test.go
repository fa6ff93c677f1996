package session

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferFlushPreservesOrder(t *testing.T) {
	ab := NewAudioBuffer(1024)

	chunks := [][]byte{{1, 2}, {3}, {4, 5, 6}}
	for _, c := range chunks {
		if err := ab.Append(c); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got := ab.Flush()
	want := []byte{1, 2, 3, 4, 5, 6}
	if !bytes.Equal(got, want) {
		t.Errorf("Flush: got %v, want %v", got, want)
	}
	if !ab.IsEmpty() {
		t.Error("buffer not empty after Flush")
	}
	if ab.Size() != 0 {
		t.Errorf("Size after Flush: %d", ab.Size())
	}
}

func TestBufferRejectsOverflow(t *testing.T) {
	ab := NewAudioBuffer(4)

	if err := ab.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	err := ab.Append([]byte{4, 5})
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	// The rejected chunk must not be partially kept.
	if ab.Size() != 3 || ab.ChunkCount() != 1 {
		t.Errorf("buffer mutated by rejected append: size=%d chunks=%d", ab.Size(), ab.ChunkCount())
	}
}

func TestBufferClear(t *testing.T) {
	ab := NewAudioBuffer(16)
	ab.Append([]byte{1, 2, 3})
	ab.Clear()

	if !ab.IsEmpty() {
		t.Error("buffer not empty after Clear")
	}
	if got := ab.Flush(); got != nil {
		t.Errorf("Flush after Clear returned data: %v", got)
	}
}
