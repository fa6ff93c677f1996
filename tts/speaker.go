// Package tts plays one-shot synthesized speech. The speaker keeps its own
// playback timeline, separate from the live session's, and enforces the
// at-most-one-playing invariant: starting a new utterance always stops the
// current one first.
package tts

import (
	"context"
	"fmt"
	"sync"

	"madrasa-audio/audio"
)

// Synthesizer produces PCM16LE mono audio at 24kHz for a piece of text. An
// empty result (no error) means the remote returned no audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Rates a user may select for one-shot playback.
var allowedRates = map[float64]bool{0.5: true, 1: true, 1.5: true, 2: true}

// Speaker schedules one-shot speech on its own timeline.
type Speaker struct {
	synth Synthesizer
	sched *audio.Scheduler

	mu      sync.Mutex
	rate    float64
	playing string

	// OnPlayingChanged receives the playing utterance ID, "" when idle.
	OnPlayingChanged func(id string)
}

// NewSpeaker creates a speaker at 1x speed.
func NewSpeaker(synth Synthesizer, clock audio.Clock, sink audio.Sink) *Speaker {
	return &Speaker{
		synth: synth,
		sched: audio.NewScheduler(clock, sink),
		rate:  1,
	}
}

// SetRate selects the playback speed multiplier. Only 0.5x, 1x, 1.5x and 2x
// are accepted.
func (sp *Speaker) SetRate(rate float64) error {
	if !allowedRates[rate] {
		return fmt.Errorf("unsupported playback rate %.2gx", rate)
	}
	sp.mu.Lock()
	sp.rate = rate
	sp.mu.Unlock()
	return nil
}

// Say synthesizes text and plays it, stopping any current utterance first.
// A synthesis result with no audio clears the playing indicator and returns
// nil.
func (sp *Speaker) Say(ctx context.Context, id, text string) error {
	sp.Stop()
	sp.setPlaying(id)

	data, err := sp.synth.Synthesize(ctx, text)
	if err != nil {
		sp.clearIfPlaying(id)
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	if len(data) == 0 {
		sp.clearIfPlaying(id)
		return nil
	}

	sp.mu.Lock()
	rate := sp.rate
	current := sp.playing
	sp.mu.Unlock()
	if current != id {
		// Stopped (or replaced) while the synthesis call was in flight.
		return nil
	}

	frame := audio.Frame{
		Data:       data,
		SampleRate: audio.PlaybackRate,
		Channels:   1,
		Rate:       rate,
	}
	if _, err := sp.sched.Schedule(frame, func() { sp.clearIfPlaying(id) }); err != nil {
		sp.clearIfPlaying(id)
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// Stop force-stops the current utterance and resets the timeline.
func (sp *Speaker) Stop() {
	sp.sched.Flush()
	sp.mu.Lock()
	changed := sp.playing != ""
	sp.playing = ""
	sp.mu.Unlock()
	if changed {
		sp.notify("")
	}
}

// Playing returns the current utterance ID, or "" when idle.
func (sp *Speaker) Playing() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.playing
}

func (sp *Speaker) setPlaying(id string) {
	sp.mu.Lock()
	sp.playing = id
	sp.mu.Unlock()
	sp.notify(id)
}

func (sp *Speaker) clearIfPlaying(id string) {
	sp.mu.Lock()
	if sp.playing != id {
		sp.mu.Unlock()
		return
	}
	sp.playing = ""
	sp.mu.Unlock()
	sp.notify("")
}

func (sp *Speaker) notify(id string) {
	if sp.OnPlayingChanged != nil {
		sp.OnPlayingChanged(id)
	}
}
