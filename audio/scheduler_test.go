package audio

import (
	"testing"
	"time"
)

// manualClock advances only when told to, firing due timers in order.
type manualClock struct {
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) Now() time.Duration { return c.now }

func (c *manualClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := &manualTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		if t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (c *manualClock) advance(d time.Duration) {
	c.now += d
	for _, t := range c.timers {
		if !t.fired && !t.stopped && t.at <= c.now {
			t.fired = true
			t.f()
		}
	}
}

// recordSink records scheduled start times.
type recordSink struct {
	starts  []time.Duration
	flushes int
}

func (rs *recordSink) Play(f Frame, at time.Duration) error {
	rs.starts = append(rs.starts, at)
	return nil
}

func (rs *recordSink) Flush() error {
	rs.flushes++
	return nil
}

// pcmFrame builds a 24kHz mono frame with the given duration.
func pcmFrame(d time.Duration) Frame {
	samples := int(d * PlaybackRate / time.Second)
	return Frame{Data: make([]byte, samples*2), SampleRate: PlaybackRate, Channels: 1}
}

func TestScheduleGaplessBurst(t *testing.T) {
	clock := &manualClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	// Three frames arrive back to back, faster than real time.
	durations := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 40 * time.Millisecond}
	for _, d := range durations {
		if _, err := s.Schedule(pcmFrame(d), nil); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}

	if len(sink.starts) != 3 {
		t.Fatalf("expected 3 scheduled frames, got %d", len(sink.starts))
	}
	// start(i+1) = start(i) + d(i): no gaps, no overlap.
	for i := 1; i < len(sink.starts); i++ {
		want := sink.starts[i-1] + durations[i-1]
		if sink.starts[i] != want {
			t.Errorf("frame %d start: got %v, want %v", i, sink.starts[i], want)
		}
	}
	if got, want := s.NextStart(), sink.starts[2]+durations[2]; got != want {
		t.Errorf("cursor: got %v, want %v", got, want)
	}
	if s.ActiveCount() != 3 {
		t.Errorf("expected 3 active sources, got %d", s.ActiveCount())
	}
}

func TestScheduleNeverStartsInThePast(t *testing.T) {
	clock := &manualClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	if _, err := s.Schedule(pcmFrame(50*time.Millisecond), nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// Real time overtakes the timeline before the next frame arrives.
	clock.advance(300 * time.Millisecond)
	if _, err := s.Schedule(pcmFrame(50*time.Millisecond), nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if got := sink.starts[1]; got != clock.Now() {
		t.Errorf("late frame start: got %v, want now (%v)", got, clock.Now())
	}
}

func TestSourceSelfRemovesOnCompletion(t *testing.T) {
	clock := &manualClock{}
	s := NewScheduler(clock, &recordSink{})

	done := 0
	if _, err := s.Schedule(pcmFrame(100*time.Millisecond), func() { done++ }); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	clock.advance(99 * time.Millisecond)
	if s.ActiveCount() != 1 || done != 0 {
		t.Fatalf("source completed early: active=%d done=%d", s.ActiveCount(), done)
	}

	clock.advance(1 * time.Millisecond)
	if s.ActiveCount() != 0 {
		t.Errorf("expected empty active set after completion, got %d", s.ActiveCount())
	}
	if done != 1 {
		t.Errorf("expected onDone once, got %d", done)
	}
}

func TestFlushDiscardsPendingAndResetsCursor(t *testing.T) {
	clock := &manualClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	done := 0
	for i := 0; i < 5; i++ {
		if _, err := s.Schedule(pcmFrame(200*time.Millisecond), func() { done++ }); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}

	clock.advance(50 * time.Millisecond)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if s.ActiveCount() != 0 {
		t.Errorf("active set not cleared: %d", s.ActiveCount())
	}
	if got := s.NextStart(); got != clock.Now() {
		t.Errorf("cursor after flush: got %v, want now (%v)", got, clock.Now())
	}
	if sink.flushes != 1 {
		t.Errorf("sink flushes: got %d, want 1", sink.flushes)
	}

	// Flushed sources never complete, so onDone must not fire later.
	clock.advance(5 * time.Second)
	if done != 0 {
		t.Errorf("onDone fired for flushed sources: %d", done)
	}

	// Next frame starts at now, not the stale future offset.
	if _, err := s.Schedule(pcmFrame(100*time.Millisecond), nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if got := sink.starts[len(sink.starts)-1]; got != clock.Now() {
		t.Errorf("post-flush start: got %v, want now (%v)", got, clock.Now())
	}
}

func TestScheduleEmptyFrameIsNoOp(t *testing.T) {
	clock := &manualClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	src, err := s.Schedule(Frame{SampleRate: PlaybackRate}, nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if src != nil {
		t.Error("expected nil source for empty frame")
	}
	if len(sink.starts) != 0 || s.ActiveCount() != 0 {
		t.Error("empty frame reached the sink")
	}
}

func TestRateScalesDuration(t *testing.T) {
	f := pcmFrame(400 * time.Millisecond)
	f.Rate = 2
	if got, want := f.Duration(), 200*time.Millisecond; got != want {
		t.Errorf("2x duration: got %v, want %v", got, want)
	}
	f.Rate = 0.5
	if got, want := f.Duration(), 800*time.Millisecond; got != want {
		t.Errorf("0.5x duration: got %v, want %v", got, want)
	}
}
