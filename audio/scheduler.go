package audio

import (
	"sync"
	"time"
)

// Sink receives scheduled frames for audible output. Play is called with the
// absolute start time on the scheduler's clock; implementations that play in
// arrival order (a pipe to an external player) may ignore it. Flush discards
// any audio handed over but not yet played. Sinks must not call back into
// the scheduler.
type Sink interface {
	Play(f Frame, at time.Duration) error
	Flush() error
}

// Source is one scheduled-but-not-yet-finished playback unit. It removes
// itself from the scheduler's active set when playback naturally completes.
type Source struct {
	startAt time.Duration
	endAt   time.Duration
	cancel  func() bool
	onDone  func()
}

// StartAt returns the scheduled start time on the scheduler's clock.
func (s *Source) StartAt() time.Duration { return s.startAt }

// Scheduler plays inbound frames gaplessly, in arrival order, with no
// overlap. It owns the playback timeline cursor: on each frame the start
// time is max(next, now) and the cursor advances by the frame's duration.
// Flush force-stops every active source and resets the cursor to now, which
// is how interruption (barge-in) is honored.
//
// All mutation happens under one mutex, so an interruption observed between
// two frames can never reorder against them.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	sink   Sink
	next   time.Duration
	active map[*Source]struct{}
}

// NewScheduler creates a scheduler with an empty timeline starting at the
// clock's current time.
func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		next:   clock.Now(),
		active: make(map[*Source]struct{}),
	}
}

// Schedule queues a frame for gapless playback. onDone, if non-nil, runs
// once when the frame finishes playing naturally; it does not run when the
// source is flushed. Empty frames are ignored and return (nil, nil).
func (s *Scheduler) Schedule(f Frame, onDone func()) (*Source, error) {
	if len(f.Data) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	startAt := s.next
	if now > startAt {
		startAt = now
	}
	d := f.Duration()
	s.next = startAt + d

	src := &Source{startAt: startAt, endAt: startAt + d, onDone: onDone}
	s.active[src] = struct{}{}

	if err := s.sink.Play(f, startAt); err != nil {
		delete(s.active, src)
		return nil, err
	}
	src.cancel = s.clock.AfterFunc(src.endAt-now, func() { s.complete(src) })
	return src, nil
}

// complete removes a source that finished playing naturally.
func (s *Scheduler) complete(src *Source) {
	s.mu.Lock()
	_, live := s.active[src]
	delete(s.active, src)
	s.mu.Unlock()

	if live && src.onDone != nil {
		src.onDone()
	}
}

// Flush force-stops every active source, clears the set and resets the
// timeline cursor to the current clock time, so the next scheduled frame
// starts immediately rather than at a stale future offset.
func (s *Scheduler) Flush() error {
	s.mu.Lock()
	for src := range s.active {
		if src.cancel != nil {
			src.cancel()
		}
		delete(s.active, src)
	}
	s.next = s.clock.Now()
	s.mu.Unlock()

	return s.sink.Flush()
}

// ActiveCount returns the number of scheduled-but-unfinished sources.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the current timeline cursor.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
