package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the call deadline expires before the
// guarded backend's rate allows another request.
var ErrRateLimited = errors.New("backend rate limit exceeded")

// GuardConfig tunes the circuit breaker and rate limiter wrapped around a
// backend. Zero values disable the respective guard.
type GuardConfig struct {
	FailureThreshold  uint32
	ResetTimeout      time.Duration
	RequestsPerMinute int
}

type guard[T any] struct {
	cb      *gobreaker.CircuitBreaker[T]
	limiter *rate.Limiter
}

func newGuard[T any](name string, cfg GuardConfig) guard[T] {
	g := guard[T]{}
	if cfg.FailureThreshold > 0 {
		threshold := cfg.FailureThreshold
		g.cb = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("backend circuit state changed",
					slog.String("backend", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}
	if cfg.RequestsPerMinute > 0 {
		every := time.Minute / time.Duration(cfg.RequestsPerMinute)
		g.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
	return g
}

func (g guard[T]) do(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	if g.cb == nil {
		return fn(ctx)
	}
	return g.cb.Execute(func() (T, error) {
		return fn(ctx)
	})
}

type guardedVision struct {
	VisionEngine
	g guard[string]
}

// GuardVision wraps v with a circuit breaker and a rate limiter.
func GuardVision(name string, v VisionEngine, cfg GuardConfig) VisionEngine {
	return &guardedVision{VisionEngine: v, g: newGuard[string](name, cfg)}
}

func (gv *guardedVision) Analyze(ctx context.Context, req VisionRequest) (string, error) {
	return gv.g.do(ctx, func(ctx context.Context) (string, error) {
		return gv.VisionEngine.Analyze(ctx, req)
	})
}

type guardedText struct {
	TextEngine
	g guard[string]
}

// GuardText wraps t with a circuit breaker and a rate limiter.
func GuardText(name string, t TextEngine, cfg GuardConfig) TextEngine {
	return &guardedText{TextEngine: t, g: newGuard[string](name, cfg)}
}

func (gt *guardedText) Generate(ctx context.Context, prompt string) (string, error) {
	return gt.g.do(ctx, func(ctx context.Context) (string, error) {
		return gt.TextEngine.Generate(ctx, prompt)
	})
}

type guardedTTS struct {
	TTSEngine
	g guard[Audio]
}

// GuardTTS wraps t with a circuit breaker and a rate limiter.
func GuardTTS(name string, t TTSEngine, cfg GuardConfig) TTSEngine {
	return &guardedTTS{TTSEngine: t, g: newGuard[Audio](name, cfg)}
}

func (gt *guardedTTS) Synthesize(ctx context.Context, text string, voice string) (Audio, error) {
	return gt.g.do(ctx, func(ctx context.Context) (Audio, error) {
		return gt.TTSEngine.Synthesize(ctx, text, voice)
	})
}
