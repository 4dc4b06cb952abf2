// Package alert drives the emergency SOS flow: confirmation, a visible
// countdown, and hand-off of the drafted message to the SMS dispatcher.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/samarth-ai/samarth/internal/geo"
	"github.com/samarth-ai/samarth/pkg/contacts"
	"github.com/samarth-ai/samarth/pkg/events"
)

// ErrInvalidTransition is returned when an action is not valid in the
// current state.
var ErrInvalidTransition = errors.New("invalid alert transition")

// Dispatcher hands a message off for delivery to one phone number. It does
// not report delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, phone, body string)
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, sessionID string, data any) error
}

// Submitter runs background work. The frame worker pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task func()) error
}

// Options tunes the coordinator.
type Options struct {
	Countdown  int
	Tick       time.Duration
	GeoTimeout time.Duration
	AutoNotify bool
	MaxHistory int
}

func (o *Options) defaults() {
	if o.Countdown <= 0 {
		o.Countdown = 5
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.GeoTimeout <= 0 {
		o.GeoTimeout = 10 * time.Second
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
}

// Coordinator owns at most one emergency session.
type Coordinator struct {
	locator  geo.Locator
	composer *Composer
	store    contacts.Store
	sms      Dispatcher
	pub      Emitter
	pool     Submitter
	opts     Options

	mu       sync.Mutex
	session  *Session
	gen      uint64
	stopTick chan struct{}
}

// NewCoordinator wires a coordinator. locator may be nil when the device
// has no position source; pool may be nil to use plain goroutines.
func NewCoordinator(locator geo.Locator, composer *Composer, store contacts.Store, sms Dispatcher, pub Emitter, pool Submitter, opts Options) *Coordinator {
	opts.defaults()
	return &Coordinator{
		locator:  locator,
		composer: composer,
		store:    store,
		sms:      sms,
		pub:      pub,
		pool:     pool,
		opts:     opts,
	}
}

type pending struct {
	eventType events.EventType
	sessionID string
	data      any
}

func (c *Coordinator) emit(ctx context.Context, evs ...pending) {
	if c.pub == nil {
		return
	}
	for _, e := range evs {
		if err := c.pub.Emit(ctx, e.eventType, e.sessionID, e.data); err != nil {
			slog.WarnContext(ctx, "alert event publish failed",
				slog.String("event_type", string(e.eventType)), slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) submit(ctx context.Context, task func()) {
	if c.pool != nil {
		if err := c.pool.Submit(ctx, task); err == nil {
			return
		}
	}
	go task()
}

// transitionLocked must be called with mu held.
func (c *Coordinator) transitionLocked(to State, trigger string) pending {
	t := c.session.record(to, trigger)
	return pending{events.AlertState, c.session.ID, &events.AlertStateData{
		From: string(t.From), To: string(t.To), Trigger: trigger,
	}}
}

// Open starts a new session in Confirm and begins resolving the location
// and drafting the message in the background.
func (c *Coordinator) Open(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.session != nil {
		state := c.session.State
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: session already %s", ErrInvalidTransition, state)
	}
	c.gen++
	gen := c.gen
	c.session = newSession(xid.New().String(), c.opts.Countdown, c.opts.MaxHistory)
	ev := c.transitionLocked(Confirm, "open")
	snap := c.session.snapshot()
	c.mu.Unlock()

	c.emit(ctx, pending{events.AlertOpened, snap.SessionID, ev.data}, ev)

	bg := context.WithoutCancel(ctx)
	c.submit(bg, func() { c.prepare(bg, gen, snap.SessionID) })
	return snap, nil
}

// liveLocked reports whether gen still identifies the open session.
func (c *Coordinator) liveLocked(gen uint64) bool {
	return c.session != nil && c.gen == gen
}

func (c *Coordinator) prepare(ctx context.Context, gen uint64, sessionID string) {
	location := c.locate(ctx)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.session.Location = location
	c.session.LocationResolved = true
	c.mu.Unlock()

	notes := "User did not provide name"
	if c.store != nil {
		name, err := c.store.UserName(ctx)
		if err != nil {
			slog.WarnContext(ctx, "reading display name failed", slog.String("error", err.Error()))
		} else if name != "" {
			notes = "Name: " + name
		}
	}

	draft := c.composer.Draft(ctx, location, notes)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.session.Draft = draft
	c.session.DraftReady = true
	if c.session.State == Dispatched {
		c.session.Message = draft
	}
	c.mu.Unlock()

	c.emit(ctx, pending{events.AlertDraft, sessionID, &events.AlertDraftData{Location: location, Message: draft}})
}

func (c *Coordinator) locate(ctx context.Context) string {
	if c.locator == nil {
		return LocationUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.GeoTimeout)
	defer cancel()

	pos, err := c.locator.Locate(ctx)
	if err != nil {
		slog.WarnContext(ctx, "geolocation failed", slog.String("error", err.Error()))
		return LocationUnknown
	}
	return pos.String()
}

// Confirm moves Confirm to Countdown and starts the countdown.
func (c *Coordinator) Confirm(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.session == nil || c.session.State != Confirm {
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: confirm requires the confirm state", ErrInvalidTransition)
	}
	ev := c.transitionLocked(Countdown, "confirm")
	c.session.Remaining = c.opts.Countdown
	stop := make(chan struct{})
	c.stopTick = stop
	gen := c.gen
	snap := c.session.snapshot()
	c.mu.Unlock()

	c.emit(ctx, ev)

	bg := context.WithoutCancel(ctx)
	go c.countdown(bg, gen, stop)
	return snap, nil
}

func (c *Coordinator) countdown(ctx context.Context, gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := c.tick(ctx, gen); done {
				return
			}
		}
	}
}

func (c *Coordinator) tick(ctx context.Context, gen uint64) bool {
	c.mu.Lock()
	if !c.liveLocked(gen) || c.session.State != Countdown {
		c.mu.Unlock()
		return true
	}
	c.session.Remaining--
	remaining := c.session.Remaining
	evs := []pending{{events.AlertTick, c.session.ID, &events.AlertTickData{Remaining: remaining}}}
	var notify bool
	if remaining <= 0 {
		evs = append(evs, c.dispatchLocked("countdown")...)
		notify = c.opts.AutoNotify
	}
	c.mu.Unlock()

	c.emit(ctx, evs...)
	if notify {
		c.notifyAll(ctx)
	}
	return remaining <= 0
}

// dispatchLocked enters Dispatched and stops the countdown. mu must be held.
func (c *Coordinator) dispatchLocked(trigger string) []pending {
	c.stopTickLocked()
	ev := c.transitionLocked(Dispatched, trigger)
	s := c.session
	if s.DraftReady {
		s.Message = s.Draft
	} else {
		location := s.Location
		if !s.LocationResolved {
			location = LocationUnknown
		}
		s.Message = Fallback(location, "user did not provide name")
	}
	return []pending{ev, {events.AlertDispatched, s.ID, &events.AlertDispatchedData{
		Message:    s.Message,
		Location:   s.Location,
		DraftReady: s.DraftReady,
	}}}
}

func (c *Coordinator) stopTickLocked() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

// SendNow skips the rest of the countdown.
func (c *Coordinator) SendNow(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.session == nil || c.session.State != Countdown {
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: send now requires the countdown state", ErrInvalidTransition)
	}
	evs := c.dispatchLocked("send_now")
	snap := c.session.snapshot()
	c.mu.Unlock()

	c.emit(ctx, evs...)
	if c.opts.AutoNotify {
		c.notifyAll(context.WithoutCancel(ctx))
	}
	return c.withContacts(ctx, snap), nil
}

// Cancel tears the session down from any non-idle state. Late location or
// draft results for the cancelled session are ignored.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no open session", ErrInvalidTransition)
	}
	c.stopTickLocked()
	from := c.session.State
	id := c.session.ID
	c.session = nil
	c.gen++
	c.mu.Unlock()

	c.emit(ctx, pending{events.AlertCancelled, id, &events.AlertStateData{
		From: string(from), To: string(Idle), Trigger: "cancel",
	}})
	return nil
}

// Snapshot returns the current flow. In Dispatched the contact list is
// attached.
func (c *Coordinator) Snapshot(ctx context.Context) Snapshot {
	c.mu.Lock()
	snap := c.session.snapshot()
	c.mu.Unlock()
	return c.withContacts(ctx, snap)
}

func (c *Coordinator) withContacts(ctx context.Context, snap Snapshot) Snapshot {
	if snap.State != Dispatched || c.store == nil {
		return snap
	}
	list, err := c.store.Contacts(ctx)
	if err != nil {
		slog.WarnContext(ctx, "loading contacts failed", slog.String("error", err.Error()))
		return snap
	}
	snap.Contacts = list
	return snap
}

// Notify hands the dispatched message to the SMS dispatcher for one phone
// number. An empty phone leaves the recipient choice to the SMS app.
func (c *Coordinator) Notify(ctx context.Context, phone string) error {
	c.mu.Lock()
	if c.session == nil || c.session.State != Dispatched {
		c.mu.Unlock()
		return fmt.Errorf("%w: notify requires the dispatched state", ErrInvalidTransition)
	}
	body := c.session.Message
	c.mu.Unlock()

	c.handOff(context.WithoutCancel(ctx), phone, body)
	return nil
}

// NotifyAll hands the message off to every stored contact and returns how
// many hand-offs were issued.
func (c *Coordinator) NotifyAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.session == nil || c.session.State != Dispatched {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: notify requires the dispatched state", ErrInvalidTransition)
	}
	c.mu.Unlock()
	return c.notifyAll(context.WithoutCancel(ctx)), nil
}

func (c *Coordinator) notifyAll(ctx context.Context) int {
	if c.store == nil {
		return 0
	}
	list, err := c.store.Contacts(ctx)
	if err != nil {
		slog.WarnContext(ctx, "loading contacts failed", slog.String("error", err.Error()))
		return 0
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return 0
	}
	body := c.session.Message
	c.mu.Unlock()

	for _, ct := range list {
		c.handOff(ctx, ct.Phone, body)
	}
	return len(list)
}

func (c *Coordinator) handOff(ctx context.Context, phone, body string) {
	if c.sms == nil {
		return
	}
	c.submit(ctx, func() { c.sms.Dispatch(ctx, phone, body) })
}

// Close stops any running countdown and discards the session.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.stopTickLocked()
	c.session = nil
	c.gen++
	c.mu.Unlock()
}
