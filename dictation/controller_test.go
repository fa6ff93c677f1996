package dictation

import (
	"context"
	"errors"
	"testing"
)

type memField struct {
	id   string
	text string
}

func (f *memField) ID() string      { return f.id }
func (f *memField) Text() string    { return f.text }
func (f *memField) SetText(s string) { f.text = s }

// fakeRecognizer records lifecycle calls and lets tests fire events.
type fakeRecognizer struct {
	ev      Events
	started bool
	stopped bool
}

func (r *fakeRecognizer) Start(ctx context.Context, lang string, ev Events) error {
	r.ev = ev
	r.started = true
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.stopped = true
	return nil
}

// harness hands out fake recognizers in creation order.
type harness struct {
	created []*fakeRecognizer
}

func (h *harness) factory() (Recognizer, error) {
	r := &fakeRecognizer{}
	h.created = append(h.created, r)
	return r, nil
}

func (h *harness) last() *fakeRecognizer {
	return h.created[len(h.created)-1]
}

func TestAppendProperty(t *testing.T) {
	cases := []struct {
		name       string
		baseline   string
		transcript string
		want       string
	}{
		{"empty baseline", "", "bismillah", "bismillah"},
		{"non-empty baseline", "alhamdu", "lillah", "alhamdu lillah"},
		{"empty transcript keeps baseline", "alhamdu", "", "alhamdu"},
		{"both empty", "", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &harness{}
			c := NewController(h.factory, "ar-SA")
			f := &memField{id: "verse", text: tc.baseline}

			if err := c.Toggle(context.Background(), f); err != nil {
				t.Fatalf("Toggle failed: %v", err)
			}
			h.last().ev.OnResult(tc.transcript)

			if f.text != tc.want {
				t.Errorf("field text: got %q, want %q", f.text, tc.want)
			}
		})
	}
}

func TestInterimResultsDoNotMoveBaseline(t *testing.T) {
	h := &harness{}
	c := NewController(h.factory, "ar-SA")
	f := &memField{id: "verse", text: "qul"}

	if err := c.Toggle(context.Background(), f); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	// Interim transcripts are cumulative within one sub-session; each result
	// replaces the previous suffix, appended to the same baseline.
	h.last().ev.OnResult("huwa")
	h.last().ev.OnResult("huwa allahu")
	h.last().ev.OnResult("huwa allahu ahad")

	if got, want := f.text, "qul huwa allahu ahad"; got != want {
		t.Errorf("field text: got %q, want %q", got, want)
	}
}

func TestNaturalEndRelaunchesWithFreshBaseline(t *testing.T) {
	h := &harness{}
	c := NewController(h.factory, "ar-SA")
	f := &memField{id: "verse", text: ""}

	if err := c.Toggle(context.Background(), f); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	first := h.last()
	first.ev.OnResult("qul huwa")

	// The primitive self-terminates; the controller must stay listening on a
	// fresh recognizer with the baseline advanced to the field text.
	first.ev.OnEnd()

	if len(h.created) != 2 {
		t.Fatalf("expected a relaunched recognizer, have %d", len(h.created))
	}
	if c.Listening() != "verse" {
		t.Fatalf("controller dropped out of listening: %q", c.Listening())
	}

	// Baseline idempotence: a silent relaunch leaves the field unchanged.
	h.last().ev.OnResult("")
	if f.text != "qul huwa" {
		t.Errorf("silent relaunch changed field: %q", f.text)
	}

	// New speech appends to the relaunch baseline, not the original one.
	h.last().ev.OnResult("allahu")
	if got, want := f.text, "qul huwa allahu"; got != want {
		t.Errorf("field text after relaunch: got %q, want %q", got, want)
	}
}

func TestToggleOffStopsWithoutRelaunch(t *testing.T) {
	h := &harness{}
	c := NewController(h.factory, "ar-SA")
	f := &memField{id: "verse"}

	if err := c.Toggle(context.Background(), f); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	first := h.last()

	if err := c.Toggle(context.Background(), f); err != nil {
		t.Fatalf("Toggle off failed: %v", err)
	}
	if c.Listening() != "" {
		t.Fatal("controller still listening after toggle off")
	}

	// A late natural-end event from the stopped instance must not revive it.
	first.ev.OnEnd()
	if len(h.created) != 1 {
		t.Errorf("stale OnEnd relaunched a recognizer: %d created", len(h.created))
	}
	if c.Listening() != "" {
		t.Error("stale OnEnd revived listening state")
	}
}

func TestSwitchingTargetsStopsOldBeforeNew(t *testing.T) {
	h := &harness{}
	c := NewController(h.factory, "ar-SA")
	x := &memField{id: "x", text: "old"}
	y := &memField{id: "y"}

	if err := c.Toggle(context.Background(), x); err != nil {
		t.Fatalf("Toggle x failed: %v", err)
	}
	xRec := h.last()

	if err := c.Toggle(context.Background(), y); err != nil {
		t.Fatalf("Toggle y failed: %v", err)
	}
	if c.Listening() != "y" {
		t.Fatalf("expected y listening, got %q", c.Listening())
	}

	// Results from the detached x recognizer must not write to x anymore.
	xRec.ev.OnResult("stray words")
	if x.text != "old" {
		t.Errorf("stopped target received text: %q", x.text)
	}

	h.last().ev.OnResult("fresh")
	if y.text != "fresh" {
		t.Errorf("new target text: got %q, want %q", y.text, "fresh")
	}
}

func TestFatalErrorSurfacesPerClassMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"permission", ErrPermissionDenied, "Microphone permission denied."},
		{"network", ErrNetwork, "Speech recognition network error. Please check your internet connection."},
		{"other", errors.New("aborted"), "Speech recognition error: aborted"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &harness{}
			c := NewController(h.factory, "ar-SA")
			var got string
			c.OnError = func(msg string) { got = msg }
			f := &memField{id: "verse"}

			if err := c.Toggle(context.Background(), f); err != nil {
				t.Fatalf("Toggle failed: %v", err)
			}
			h.last().ev.OnError(tc.err)

			if got != tc.want {
				t.Errorf("message: got %q, want %q", got, tc.want)
			}
			if c.Listening() != "" {
				t.Error("controller still listening after fatal error")
			}
			if len(h.created) != 1 {
				t.Errorf("fatal error triggered a relaunch: %d created", len(h.created))
			}
		})
	}
}

func TestFactoryFailureReportsUnsupported(t *testing.T) {
	c := NewController(func() (Recognizer, error) {
		return nil, errors.New("no primitive")
	}, "ar-SA")

	err := c.Toggle(context.Background(), &memField{id: "verse"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if c.Listening() != "" {
		t.Error("controller listening after failed start")
	}
}
