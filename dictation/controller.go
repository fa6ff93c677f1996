// Package dictation presents unbounded continuous speech-to-text on top of a
// recognition primitive that intermittently self-terminates. When a
// recognizer ends naturally while the user still wants to dictate, the
// controller relaunches a fresh one with the baseline advanced to the
// field's current text, so listening appears unbroken.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Classified fatal recognizer errors. Anything else is reported verbatim.
var (
	ErrUnsupported      = errors.New("speech recognition is not supported")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNetwork          = errors.New("speech recognition network error")
)

// Field is an editable text target receiving transcribed speech.
type Field interface {
	ID() string
	Text() string
	SetText(string)
}

// Events carries a recognizer sub-session's callbacks. OnResult delivers the
// accumulated transcript of the current sub-session (not a delta). OnEnd
// signals natural termination; OnError signals a fatal classified error.
type Events struct {
	OnResult func(sessionTranscript string)
	OnEnd    func()
	OnError  func(err error)
}

// Recognizer is one disposable recognition sub-session. Implementations may
// terminate on their own at any time (provider timeout, silence), reported
// through Events.OnEnd. Start must deliver events asynchronously, never from
// inside the Start call itself.
type Recognizer interface {
	Start(ctx context.Context, lang string, ev Events) error
	Stop() error
}

// Controller is the dictation continuity state machine. At most one
// recognizer instance is alive at any time; at most one field is listening.
type Controller struct {
	mu            sync.Mutex
	newRecognizer func() (Recognizer, error)
	lang          string

	listening bool
	target    Field
	baseline  string
	rec       Recognizer
	// gen guards against callbacks from stopped sub-sessions: incrementing
	// it is how the natural-end handler is detached before a stop.
	gen int

	// OnError receives the human-readable message for a fatal error.
	OnError func(msg string)
	// OnStateChange receives the listening field's ID, or "" when idle.
	OnStateChange func(fieldID string)
}

// NewController creates a controller that obtains recognizer instances from
// the factory. lang is the recognition language code (e.g. "ar-SA").
func NewController(factory func() (Recognizer, error), lang string) *Controller {
	return &Controller{newRecognizer: factory, lang: lang}
}

// Toggle starts dictation on f, or stops it if f is already listening.
// Toggling a different field while one is listening stops the old recognizer
// completely before the new one starts.
func (c *Controller) Toggle(ctx context.Context, f Field) error {
	c.mu.Lock()
	if c.listening {
		same := c.target.ID() == f.ID()
		c.stopLocked()
		if same {
			c.mu.Unlock()
			c.notify("")
			return nil
		}
	}
	err := c.startLocked(ctx, f)
	c.mu.Unlock()
	if err != nil {
		c.notify("")
		return err
	}
	c.notify(f.ID())
	return nil
}

// Stop ends any active dictation. Used by teardown paths.
func (c *Controller) Stop() {
	c.mu.Lock()
	was := c.listening
	c.stopLocked()
	c.mu.Unlock()
	if was {
		c.notify("")
	}
}

// Listening returns the active field's ID, or "" when idle.
func (c *Controller) Listening() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listening {
		return ""
	}
	return c.target.ID()
}

// stopLocked detaches handlers (gen bump) before stopping the recognizer so
// a stale natural-end callback cannot revive the old target.
func (c *Controller) stopLocked() {
	c.gen++
	if c.rec != nil {
		rec := c.rec
		c.rec = nil
		go rec.Stop()
	}
	c.listening = false
	c.target = nil
	c.baseline = ""
}

func (c *Controller) startLocked(ctx context.Context, f Field) error {
	rec, err := c.newRecognizer()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	c.gen++
	c.listening = true
	c.target = f
	c.baseline = f.Text()
	c.rec = rec

	if err := rec.Start(ctx, c.lang, c.eventsLocked(ctx)); err != nil {
		c.stopLocked()
		return err
	}
	return nil
}

// eventsLocked binds callbacks to the current generation; callbacks from an
// older generation are ignored.
func (c *Controller) eventsLocked(ctx context.Context) Events {
	gen := c.gen
	return Events{
		OnResult: func(transcript string) { c.onResult(gen, transcript) },
		OnEnd:    func() { c.onEnd(ctx, gen) },
		OnError:  func(err error) { c.onError(gen, err) },
	}
}

func (c *Controller) onResult(gen int, transcript string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.listening {
		return
	}
	text := c.baseline
	if transcript != "" {
		if text != "" {
			text = text + " " + transcript
		} else {
			text = transcript
		}
	}
	c.target.SetText(text)
}

// onEnd handles the recognizer's natural termination while the controller is
// still logically listening: relaunch with the baseline advanced to the
// field's current text.
func (c *Controller) onEnd(ctx context.Context, gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.listening {
		c.mu.Unlock()
		return
	}

	target := c.target
	rec, err := c.newRecognizer()
	if err != nil {
		c.stopLocked()
		c.mu.Unlock()
		c.surface(fmt.Errorf("%w: %v", ErrUnsupported, err))
		c.notify("")
		return
	}

	c.gen++
	c.baseline = target.Text()
	c.rec = rec
	ev := c.eventsLocked(ctx)
	c.mu.Unlock()

	if err := rec.Start(ctx, c.lang, ev); err != nil {
		c.mu.Lock()
		c.stopLocked()
		c.mu.Unlock()
		c.surface(err)
		c.notify("")
	}
}

func (c *Controller) onError(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.listening {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mu.Unlock()
	c.surface(err)
	c.notify("")
}

// surface converts a fatal error into the per-class message shown to the
// user.
func (c *Controller) surface(err error) {
	if c.OnError == nil {
		return
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		c.OnError("Microphone permission denied.")
	case errors.Is(err, ErrNetwork):
		c.OnError("Speech recognition network error. Please check your internet connection.")
	default:
		c.OnError(fmt.Sprintf("Speech recognition error: %v", err))
	}
}

func (c *Controller) notify(fieldID string) {
	if c.OnStateChange != nil {
		c.OnStateChange(fieldID)
	}
}
