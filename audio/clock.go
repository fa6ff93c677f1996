package audio

import "time"

// Clock is the scheduler's time source. The zero point is arbitrary; only
// monotonic progression matters. Tests drive a manual clock, production uses
// the wall clock.
type Clock interface {
	Now() time.Duration
	// AfterFunc runs f after d elapses and returns a cancel func. Cancel
	// reports whether it stopped f before it ran.
	AfterFunc(d time.Duration, f func()) (cancel func() bool)
}

type realClock struct {
	start time.Time
}

// NewClock returns a Clock backed by the monotonic wall clock.
func NewClock() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *realClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}
