package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samarth-ai/samarth/internal/geo"
	"github.com/samarth-ai/samarth/pkg/contacts"
	"github.com/samarth-ai/samarth/pkg/events"
)

type stubLocator struct {
	pos     geo.Coordinates
	err     error
	release chan struct{}
}

func (l *stubLocator) Locate(ctx context.Context) (geo.Coordinates, error) {
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return geo.Coordinates{}, ctx.Err()
		}
	}
	return l.pos, l.err
}

type stubText struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (s *stubText) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubText) Close() error { return nil }

type sent struct{ phone, body string }

type recordingSMS struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSMS) Dispatch(_ context.Context, phone, body string) {
	r.mu.Lock()
	r.sent = append(r.sent, sent{phone, body})
	r.mu.Unlock()
}

func (r *recordingSMS) list() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

type recordedEvent struct {
	typ  events.EventType
	data any
}

type recordingEmitter struct {
	mu  sync.Mutex
	evs []recordedEvent
}

func (r *recordingEmitter) Emit(_ context.Context, et events.EventType, _ string, data any) error {
	r.mu.Lock()
	r.evs = append(r.evs, recordedEvent{et, data})
	r.mu.Unlock()
	return nil
}

func (r *recordingEmitter) ofType(et events.EventType) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.evs {
		if e.typ == et {
			out = append(out, e)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	c    *Coordinator
	text *stubText
	sms  *recordingSMS
	pub  *recordingEmitter
	st   *contacts.MemoryStore
}

func newFixture(t *testing.T, locator geo.Locator, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		text: &stubText{reply: "SOS! Asha needs help at 12.9716, 77.5946."},
		sms:  &recordingSMS{},
		pub:  &recordingEmitter{},
		st:   contacts.NewMemoryStore(),
	}
	if opts.Tick == 0 {
		opts.Tick = 5 * time.Millisecond
	}
	f.c = NewCoordinator(locator, NewComposer(f.text, time.Second), f.st, f.sms, f.pub, nil, opts)
	t.Cleanup(f.c.Close)
	return f
}

func (f *fixture) draftReady(t *testing.T) Snapshot {
	t.Helper()
	var snap Snapshot
	waitFor(t, "draft", func() bool {
		snap = f.c.Snapshot(t.Context())
		return snap.DraftReady
	})
	return snap
}

func TestCountdownTicksThenDispatchesOnce(t *testing.T) {
	f := newFixture(t, &stubLocator{pos: geo.Coordinates{Latitude: 12.971598, Longitude: 77.594566}}, Options{})
	ctx := t.Context()

	snap, err := f.c.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if snap.State != Confirm {
		t.Fatalf("state = %s, want confirm", snap.State)
	}
	f.draftReady(t)

	if _, err := f.c.Confirm(ctx); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	waitFor(t, "dispatch", func() bool { return f.c.Snapshot(ctx).State == Dispatched })
	time.Sleep(30 * time.Millisecond)

	ticks := f.pub.ofType(events.AlertTick)
	if len(ticks) != 5 {
		t.Fatalf("ticks = %d, want 5", len(ticks))
	}
	for i, tk := range ticks {
		want := 4 - i
		if got := tk.data.(*events.AlertTickData).Remaining; got != want {
			t.Errorf("tick %d remaining = %d, want %d", i, got, want)
		}
	}
	if n := len(f.pub.ofType(events.AlertDispatched)); n != 1 {
		t.Errorf("dispatched events = %d, want 1", n)
	}

	final := f.c.Snapshot(ctx)
	if final.Message != f.text.reply {
		t.Errorf("message = %q, want draft %q", final.Message, f.text.reply)
	}
	if final.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", final.Remaining)
	}
	var states []State
	for _, h := range final.History {
		states = append(states, h.To)
	}
	if len(states) != 3 || states[0] != Confirm || states[1] != Countdown || states[2] != Dispatched {
		t.Errorf("history = %v", states)
	}
}

func TestCancelStopsCountdown(t *testing.T) {
	f := newFixture(t, &stubLocator{}, Options{Countdown: 50})
	ctx := t.Context()

	f.c.Open(ctx)
	f.c.Confirm(ctx)
	waitFor(t, "first tick", func() bool { return len(f.pub.ofType(events.AlertTick)) > 0 })

	if err := f.c.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	after := len(f.pub.ofType(events.AlertTick))
	time.Sleep(40 * time.Millisecond)

	if got := len(f.pub.ofType(events.AlertTick)); got != after {
		t.Errorf("ticks after cancel = %d, want %d", got, after)
	}
	if s := f.c.Snapshot(ctx); s.State != Idle || s.SessionID != "" {
		t.Errorf("snapshot after cancel = %+v", s)
	}
	if n := len(f.pub.ofType(events.AlertDispatched)); n != 0 {
		t.Errorf("dispatched after cancel = %d", n)
	}
}

func TestCancelIgnoresLateDraft(t *testing.T) {
	loc := &stubLocator{release: make(chan struct{})}
	f := newFixture(t, loc, Options{})
	ctx := t.Context()

	f.c.Open(ctx)
	f.c.Cancel(ctx)
	close(loc.release)

	time.Sleep(30 * time.Millisecond)
	if n := len(f.pub.ofType(events.AlertDraft)); n != 0 {
		t.Errorf("draft events after cancel = %d", n)
	}

	// A new session is independent of the cancelled one.
	snap, err := f.c.Open(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if snap.Location != LocationPending {
		t.Errorf("location = %q, want pending", snap.Location)
	}
}

func TestGeolocationFailureStillDispatches(t *testing.T) {
	f := newFixture(t, &stubLocator{err: geo.ErrUnavailable}, Options{})
	f.text.err = errors.New("quota exceeded")
	f.st.SaveUserName(t.Context(), "Asha")
	ctx := t.Context()

	f.c.Open(ctx)
	snap := f.draftReady(t)
	if snap.Location != LocationUnknown {
		t.Errorf("location = %q, want %q", snap.Location, LocationUnknown)
	}
	want := "SOS! need help. Location: Unknown Location. Name: Asha."
	if snap.Draft != want {
		t.Errorf("draft = %q, want %q", snap.Draft, want)
	}

	f.c.Confirm(ctx)
	dispatched, err := f.c.SendNow(ctx)
	if err != nil {
		t.Fatalf("SendNow: %v", err)
	}
	if dispatched.Message != want {
		t.Errorf("message = %q, want %q", dispatched.Message, want)
	}
	if !strings.Contains(f.text.prompts[0], "Context: Name: Asha.") {
		t.Errorf("prompt = %q", f.text.prompts[0])
	}
}

func TestDispatchBeforeDraftUsesFallback(t *testing.T) {
	loc := &stubLocator{release: make(chan struct{})}
	f := newFixture(t, loc, Options{})
	ctx := t.Context()

	f.c.Open(ctx)
	f.c.Confirm(ctx)
	snap, err := f.c.SendNow(ctx)
	if err != nil {
		t.Fatalf("SendNow: %v", err)
	}
	close(loc.release)

	want := "SOS! need help. Location: Unknown Location. user did not provide name."
	if snap.Message != want {
		t.Errorf("message = %q, want %q", snap.Message, want)
	}
	if snap.DraftReady {
		t.Error("draft should not be ready")
	}
}

func TestNoLocator(t *testing.T) {
	f := newFixture(t, nil, Options{})
	f.c.Open(t.Context())
	snap := f.draftReady(t)
	if snap.Location != LocationUnsupported {
		t.Errorf("location = %q, want %q", snap.Location, LocationUnsupported)
	}
}

func TestNotify(t *testing.T) {
	f := newFixture(t, &stubLocator{}, Options{})
	ctx := t.Context()
	contacts.Add(ctx, f.st, "Mom", "111")
	contacts.Add(ctx, f.st, "Dad", "222")

	if err := f.c.Notify(ctx, "111"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Notify before dispatch err = %v", err)
	}

	f.c.Open(ctx)
	f.draftReady(t)
	f.c.Confirm(ctx)
	snap, _ := f.c.SendNow(ctx)
	if len(snap.Contacts) != 2 {
		t.Errorf("snapshot contacts = %d, want 2", len(snap.Contacts))
	}

	if err := f.c.Notify(ctx, ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	n, err := f.c.NotifyAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("NotifyAll = %d, %v", n, err)
	}

	waitFor(t, "hand-offs", func() bool { return len(f.sms.list()) == 3 })
	for _, s := range f.sms.list() {
		if s.body != f.text.reply {
			t.Errorf("body = %q", s.body)
		}
	}
}

func TestAutoNotify(t *testing.T) {
	f := newFixture(t, &stubLocator{}, Options{AutoNotify: true, Countdown: 1})
	ctx := t.Context()
	contacts.Add(ctx, f.st, "Mom", "111")

	f.c.Open(ctx)
	f.draftReady(t)
	f.c.Confirm(ctx)

	waitFor(t, "auto notify", func() bool { return len(f.sms.list()) == 1 })
	if got := f.sms.list()[0].phone; got != "111" {
		t.Errorf("phone = %q", got)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, &stubLocator{}, Options{Countdown: 100})
	ctx := t.Context()

	tests := []struct {
		name string
		call func() error
	}{
		{"confirm while idle", func() error { _, err := f.c.Confirm(ctx); return err }},
		{"send now while idle", func() error { _, err := f.c.SendNow(ctx); return err }},
		{"cancel while idle", func() error { return f.c.Cancel(ctx) }},
		{"notify all while idle", func() error { _, err := f.c.NotifyAll(ctx); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}

	f.c.Open(ctx)
	if _, err := f.c.Open(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double open err = %v", err)
	}
	if _, err := f.c.SendNow(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("send now from confirm err = %v", err)
	}
	f.c.Confirm(ctx)
	if _, err := f.c.Confirm(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double confirm err = %v", err)
	}
}

func TestComposer(t *testing.T) {
	tests := []struct {
		name string
		text *stubText
		want string
	}{
		{"draft", &stubText{reply: "  SOS! Ravi needs help.  "}, "SOS! Ravi needs help."},
		{"error", &stubText{err: errors.New("boom")}, "SOS! need help. Location: 1.0000, 2.0000. Name: Ravi."},
		{"empty", &stubText{reply: "   "}, "SOS! need help. Location: 1.0000, 2.0000. Name: Ravi."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(tt.text, time.Second)
			if got := c.Draft(t.Context(), "1.0000, 2.0000", "Name: Ravi"); got != tt.want {
				t.Errorf("Draft = %q, want %q", got, tt.want)
			}
			if !strings.Contains(tt.text.prompts[0], "My Location: 1.0000, 2.0000.") {
				t.Errorf("prompt = %q", tt.text.prompts[0])
			}
		})
	}

	var nilComposer *Composer
	if got := nilComposer.Draft(t.Context(), "here", "notes."); got != "SOS! need help. Location: here. notes." {
		t.Errorf("nil composer draft = %q", got)
	}
}

func TestSessionHistoryEviction(t *testing.T) {
	s := newSession("s1", 5, 10)
	for i := 0; i < 25; i++ {
		s.record(Countdown, "tick")
	}
	if len(s.History) > 10 {
		t.Errorf("history length = %d, want <= 10", len(s.History))
	}
	if s.State != Countdown {
		t.Errorf("state = %s", s.State)
	}
}
