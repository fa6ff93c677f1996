package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"madrasa-audio/audio"
)

type stubSynth struct {
	audio []byte
	err   error
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.audio, s.err
}

type countSink struct {
	mu      sync.Mutex
	plays   int
	flushes int
}

func (cs *countSink) Play(f audio.Frame, at time.Duration) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.plays++
	return nil
}

func (cs *countSink) Flush() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.flushes++
	return nil
}

func newSpeaker(synth Synthesizer) (*Speaker, *countSink) {
	sink := &countSink{}
	return NewSpeaker(synth, audio.NewClock(), sink), sink
}

func TestEmptySynthesisClearsIndicatorWithoutError(t *testing.T) {
	sp, sink := newSpeaker(&stubSynth{})

	if err := sp.Say(context.Background(), "verse-1", "text"); err != nil {
		t.Fatalf("Say returned error for empty synthesis: %v", err)
	}
	if got := sp.Playing(); got != "" {
		t.Errorf("playing indicator not cleared: %q", got)
	}
	if sink.plays != 0 {
		t.Errorf("empty synthesis reached the sink: %d plays", sink.plays)
	}
}

func TestSynthesisErrorClearsIndicator(t *testing.T) {
	sp, _ := newSpeaker(&stubSynth{err: errors.New("quota exceeded")})

	if err := sp.Say(context.Background(), "verse-1", "text"); err == nil {
		t.Fatal("expected synthesis error")
	}
	if got := sp.Playing(); got != "" {
		t.Errorf("playing indicator not cleared after error: %q", got)
	}
}

func TestSayStopsCurrentUtteranceFirst(t *testing.T) {
	// One second of audio so the first utterance is still active.
	sp, sink := newSpeaker(&stubSynth{audio: make([]byte, 48000)})

	if err := sp.Say(context.Background(), "a", "first"); err != nil {
		t.Fatalf("Say a failed: %v", err)
	}
	if err := sp.Say(context.Background(), "b", "second"); err != nil {
		t.Fatalf("Say b failed: %v", err)
	}

	if got := sp.Playing(); got != "b" {
		t.Errorf("playing: got %q, want %q", got, "b")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.flushes == 0 {
		t.Error("starting a new utterance did not flush the previous one")
	}
}

func TestStopClearsStateAndNotifies(t *testing.T) {
	sp, _ := newSpeaker(&stubSynth{audio: make([]byte, 48000)})
	var states []string
	sp.OnPlayingChanged = func(id string) { states = append(states, id) }

	if err := sp.Say(context.Background(), "a", "text"); err != nil {
		t.Fatalf("Say failed: %v", err)
	}
	sp.Stop()

	if got := sp.Playing(); got != "" {
		t.Errorf("playing after Stop: %q", got)
	}
	if len(states) != 2 || states[0] != "a" || states[1] != "" {
		t.Errorf("state transitions: got %v, want [a \"\"]", states)
	}
}

func TestSetRateRejectsUnknownValues(t *testing.T) {
	sp, _ := newSpeaker(&stubSynth{})
	for _, r := range []float64{0.5, 1, 1.5, 2} {
		if err := sp.SetRate(r); err != nil {
			t.Errorf("SetRate(%v) rejected: %v", r, err)
		}
	}
	for _, r := range []float64{0, 0.25, 3, -1} {
		if err := sp.SetRate(r); err == nil {
			t.Errorf("SetRate(%v) accepted", r)
		}
	}
}
