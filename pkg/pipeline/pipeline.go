// Package pipeline runs capture, describe and speak turns against the
// camera, either on demand or on a fixed live interval.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samarth-ai/samarth/internal/capture"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/pkg/events"
	"github.com/samarth-ai/samarth/pkg/prompts"
)

// User-facing texts produced by the pipeline itself.
const (
	NoCameraText        = "No camera available."
	EmptyAnalysisText   = "I couldn't analyze the image."
	ConnectionIssueText = "Sorry, connection issue. Please try again."
	DefaultInitialText  = "Ready to listen..."
)

var (
	ErrTurnInProgress = errors.New("analysis turn already in progress")
	ErrUnknownKind    = errors.New("unknown prompt kind")
	ErrClosed         = errors.New("pipeline closed")
)

// FrameSource yields one encoded still per call.
type FrameSource interface {
	Capture() (capture.Frame, error)
}

// Vision describes an image.
type Vision interface {
	Analyze(ctx context.Context, req engine.VisionRequest) (string, error)
}

// Speech turns text into a playable payload, or nil when there is none.
type Speech interface {
	Synthesize(ctx context.Context, text string) (*engine.Audio, error)
}

// Player plays one payload at a time.
type Player interface {
	Play(ctx context.Context, a engine.Audio) error
}

// Prompts resolves a prompt kind.
type Prompts interface {
	Get(kind prompts.Kind) (prompts.Prompt, bool)
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, sessionID string, data any) error
}

// Submitter runs background work. The frame worker pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task func()) error
}

// Result is the outcome of one turn.
type Result struct {
	Text      string             `json:"text"`
	Kind      prompts.Kind       `json:"kind,omitempty"`
	Tier      engine.QualityTier `json:"tier,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Spoken    bool               `json:"spoken"`
}

// Options tunes the pipeline.
type Options struct {
	VisionTimeout   time.Duration
	SpeechTimeout   time.Duration
	PlaybackTimeout time.Duration
	LiveInterval    time.Duration
	InitialText     string
	// SessionID tags published events.
	SessionID string
}

func (o *Options) defaults() {
	if o.VisionTimeout <= 0 {
		o.VisionTimeout = 30 * time.Second
	}
	if o.SpeechTimeout <= 0 {
		o.SpeechTimeout = 20 * time.Second
	}
	if o.PlaybackTimeout <= 0 {
		o.PlaybackTimeout = 2 * time.Minute
	}
	if o.LiveInterval <= 0 {
		o.LiveInterval = 5 * time.Second
	}
	if o.InitialText == "" {
		o.InitialText = DefaultInitialText
	}
	if o.SessionID == "" {
		o.SessionID = "pipeline"
	}
}

// LiveStatus describes the active live loop.
type LiveStatus struct {
	Active   bool               `json:"active"`
	Kind     prompts.Kind       `json:"kind,omitempty"`
	Tier     engine.QualityTier `json:"tier,omitempty"`
	Interval time.Duration      `json:"interval,omitempty"`
}

type liveLoop struct {
	status LiveStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// Pipeline allows at most one turn in flight.
type Pipeline struct {
	frames  FrameSource
	vision  Vision
	speech  Speech
	player  Player
	prompts Prompts
	pub     Emitter
	pool    Submitter
	opts    Options

	inFlight atomic.Bool
	dropped  atomic.Int64
	turnSeq  atomic.Uint64

	mu       sync.Mutex
	current  Result
	turnID   uint64
	lastKind prompts.Kind
	last     *engine.Audio
	live     *liveLoop
	closed   bool

	// life is cancelled by Close and bounds every backend and playback call.
	life     context.Context
	shutdown context.CancelFunc
}

// New creates a pipeline. frames, speech, player, pub and pool may be nil.
func New(frames FrameSource, vision Vision, speech Speech, player Player, catalog Prompts, pub Emitter, pool Submitter, opts Options) *Pipeline {
	opts.defaults()
	life, shutdown := context.WithCancel(context.Background())
	return &Pipeline{
		life:     life,
		shutdown: shutdown,
		frames:   frames,
		vision:   vision,
		speech:   speech,
		player:   player,
		prompts:  catalog,
		pub:      pub,
		pool:     pool,
		opts:     opts,
		current:  Result{Text: opts.InitialText, Timestamp: time.Now()},
	}
}

// Speakable reports whether text is worth synthesizing: it must be
// non-empty and contain none of the sentinels.
func Speakable(text string, sentinels []string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, s := range sentinels {
		if s != "" && strings.Contains(text, s) {
			return false
		}
	}
	return true
}

func (p *Pipeline) resolve(kind prompts.Kind, tier engine.QualityTier) (prompts.Prompt, engine.QualityTier, error) {
	pr, ok := p.prompts.Get(kind)
	if !ok {
		return prompts.Prompt{}, "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if tier == "" {
		tier = pr.Tier
	}
	if tier == "" {
		tier = engine.Accuracy
	}
	return pr, tier, nil
}

// RunOnce runs a single turn and returns its result. Vision and speech
// failures are reported through the result text, not as errors.
func (p *Pipeline) RunOnce(ctx context.Context, kind prompts.Kind, tier engine.QualityTier) (Result, error) {
	pr, tier, err := p.resolve(kind, tier)
	if err != nil {
		return Result{}, err
	}
	if p.isClosed() {
		return Result{}, ErrClosed
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrTurnInProgress
	}
	defer p.inFlight.Store(false)

	return p.turn(context.WithoutCancel(ctx), pr, tier, false), nil
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// bound returns ctx cancelled when the pipeline closes.
func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *Pipeline) emit(ctx context.Context, eventType events.EventType, data any) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Emit(ctx, eventType, p.opts.SessionID, data); err != nil {
		slog.WarnContext(ctx, "pipeline event publish failed",
			slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) turn(ctx context.Context, pr prompts.Prompt, tier engine.QualityTier, live bool) Result {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	start := time.Now()
	id := p.turnSeq.Add(1)
	res := Result{Kind: pr.Kind, Tier: tier}

	text, ok := p.describe(ctx, pr, tier)
	res.Text = text
	res.Timestamp = time.Now()
	if !p.apply(id, res) {
		return res
	}

	if ok && Speakable(text, pr.SilentOn) {
		if audio := p.synthesize(ctx, text); audio != nil {
			p.mu.Lock()
			closed := p.closed
			if !closed && p.turnID == id {
				p.current.Spoken = true
			}
			p.mu.Unlock()
			if closed {
				return res
			}
			res.Spoken = true
			p.play(ctx, *audio)
		}
	}

	p.emit(ctx, events.TurnCompleted, &events.TurnData{
		Kind:       string(res.Kind),
		Tier:       string(res.Tier),
		Text:       res.Text,
		Spoken:     res.Spoken,
		Live:       live,
		DurationMs: time.Since(start).Milliseconds(),
	})
	return res
}

// describe captures a frame and asks the vision backend about it. The
// boolean is false when the text is a local fallback that must not be
// spoken.
func (p *Pipeline) describe(ctx context.Context, pr prompts.Prompt, tier engine.QualityTier) (string, bool) {
	if p.frames == nil {
		return NoCameraText, false
	}
	frame, err := p.frames.Capture()
	if err != nil {
		if !errors.Is(err, capture.ErrNoFrame) {
			slog.WarnContext(ctx, "frame capture failed", slog.String("error", err.Error()))
		}
		return NoCameraText, false
	}

	vctx, cancel := context.WithTimeout(ctx, p.opts.VisionTimeout)
	defer cancel()

	text, err := p.vision.Analyze(vctx, engine.VisionRequest{
		Image:             frame.Data,
		MIMEType:          frame.MIMEType(),
		Prompt:            pr.Prompt,
		SystemInstruction: pr.SystemInstruction,
		Tier:              tier,
	})
	if err != nil {
		slog.WarnContext(ctx, "vision analysis failed",
			slog.String("kind", string(pr.Kind)), slog.String("error", err.Error()))
		return ConnectionIssueText, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return EmptyAnalysisText, true
	}
	return text, true
}

// apply publishes res as the current result unless the pipeline is closed.
func (p *Pipeline) apply(id uint64, res Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.current = res
	p.turnID = id
	p.lastKind = res.Kind
	return true
}

func (p *Pipeline) synthesize(ctx context.Context, text string) *engine.Audio {
	if p.speech == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, p.opts.SpeechTimeout)
	defer cancel()

	audio, err := p.speech.Synthesize(sctx, text)
	if err != nil {
		slog.WarnContext(ctx, "speech synthesis failed", slog.String("error", err.Error()))
		return nil
	}
	if audio == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.last = audio
	return audio
}

func (p *Pipeline) play(ctx context.Context, a engine.Audio) error {
	if p.player == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, p.opts.PlaybackTimeout)
	defer cancel()

	err := p.player.Play(pctx, a)
	if err != nil {
		slog.DebugContext(ctx, "playback ended early", slog.String("error", err.Error()))
	}
	return err
}

// StartLive runs a turn now and then every interval until StopLive. It
// returns false when a live loop is already running.
func (p *Pipeline) StartLive(ctx context.Context, kind prompts.Kind, tier engine.QualityTier, interval time.Duration) (bool, error) {
	pr, tier, err := p.resolve(kind, tier)
	if err != nil {
		return false, err
	}
	if interval <= 0 {
		interval = p.opts.LiveInterval
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	if p.live != nil {
		p.mu.Unlock()
		return false, nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loop := &liveLoop{
		status: LiveStatus{Active: true, Kind: pr.Kind, Tier: tier, Interval: interval},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.live = loop
	p.mu.Unlock()

	go p.runLive(loopCtx, loop, pr, tier)

	p.emit(loopCtx, events.LiveStarted, &events.LiveData{
		Kind: string(pr.Kind), Tier: string(tier), IntervalMs: interval.Milliseconds(),
	})
	return true, nil
}

func (p *Pipeline) runLive(ctx context.Context, loop *liveLoop, pr prompts.Prompt, tier engine.QualityTier) {
	defer close(loop.done)

	ticker := time.NewTicker(loop.status.Interval)
	defer ticker.Stop()

	p.tick(ctx, pr, tier)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, pr, tier)
		}
	}
}

// tick starts a turn unless one is in flight, in which case the tick is
// dropped.
func (p *Pipeline) tick(ctx context.Context, pr prompts.Prompt, tier engine.QualityTier) {
	if !p.inFlight.CompareAndSwap(false, true) {
		n := p.dropped.Add(1)
		p.emit(ctx, events.TurnDropped, &events.TurnDroppedData{
			Kind: string(pr.Kind), Dropped: n,
		})
		return
	}

	turnCtx := context.WithoutCancel(ctx)
	task := func() {
		defer p.inFlight.Store(false)
		p.turn(turnCtx, pr, tier, true)
	}
	if p.pool != nil {
		if err := p.pool.Submit(turnCtx, task); err == nil {
			return
		}
	}
	go task()
}

// StopLive stops scheduling new turns. A turn in flight completes and its
// result is kept. Returns false when no live loop was running.
func (p *Pipeline) StopLive() bool {
	p.mu.Lock()
	loop := p.live
	p.live = nil
	p.mu.Unlock()
	if loop == nil {
		return false
	}

	loop.cancel()
	<-loop.done

	p.emit(context.Background(), events.LiveStopped, &events.LiveData{
		Kind:       string(loop.status.Kind),
		Tier:       string(loop.status.Tier),
		IntervalMs: loop.status.Interval.Milliseconds(),
	})
	return true
}

// Live reports the live loop status.
func (p *Pipeline) Live() LiveStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live == nil {
		return LiveStatus{}
	}
	return p.live.status
}

// Dropped returns how many live ticks were dropped because a turn was in
// flight.
func (p *Pipeline) Dropped() int64 {
	return p.dropped.Load()
}

// Current returns the latest result.
func (p *Pipeline) Current() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Clear resets the displayed text to the initial text of the last used
// kind.
func (p *Pipeline) Clear() Result {
	text := p.opts.InitialText
	p.mu.Lock()
	kind := p.lastKind
	p.mu.Unlock()
	if kind != "" {
		if pr, ok := p.prompts.Get(kind); ok && pr.InitialText != "" {
			text = pr.InitialText
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = Result{Text: text, Timestamp: time.Now()}
	p.turnID = 0
	return p.current
}

// ReplayLast plays the last synthesized payload again without any backend
// call. It returns false when there is nothing to replay.
func (p *Pipeline) ReplayLast(ctx context.Context) (bool, error) {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil || p.player == nil {
		return false, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()
	if err := p.play(ctx, *last); err != nil {
		return true, err
	}
	return true, nil
}

// Speak synthesizes and plays text. Empty text speaks the current result.
// It returns false when nothing was played.
func (p *Pipeline) Speak(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		text = p.Current().Text
	}
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()
	audio := p.synthesize(ctx, text)
	if audio == nil {
		return false, nil
	}
	if err := p.play(ctx, *audio); err != nil {
		return true, err
	}
	return true, nil
}

// Close stops live mode and cancels backend and playback calls in flight.
// Their late results are discarded, and nothing is cached or played.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.last = nil
	p.mu.Unlock()
	p.shutdown()
	p.StopLive()
}
