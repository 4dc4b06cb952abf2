package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samarth-ai/samarth/internal/engine"
)

const sosPrompt = `Generate a concise, urgent SMS text message.
My Location: %s.
Context: %s.
Requirement: Plain text, under 160 chars if possible. "SOS! [Name] needs help at [Location]. [Context]"`

// Composer drafts alert messages with a text backend.
type Composer struct {
	text    engine.TextEngine
	timeout time.Duration
}

// NewComposer creates a composer. A nil engine always yields the fallback.
func NewComposer(text engine.TextEngine, timeout time.Duration) *Composer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Composer{text: text, timeout: timeout}
}

// Draft returns a short alert body for location and notes. It never fails:
// backend errors and empty output produce Fallback.
func (c *Composer) Draft(ctx context.Context, location, notes string) string {
	if c == nil || c.text == nil {
		return Fallback(location, notes)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.text.Generate(ctx, fmt.Sprintf(sosPrompt, location, notes))
	if err != nil {
		slog.WarnContext(ctx, "alert draft failed, using fallback", slog.String("error", err.Error()))
		return Fallback(location, notes)
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return Fallback(location, notes)
	}
	return msg
}

// Fallback builds the alert body locally.
func Fallback(location, notes string) string {
	return fmt.Sprintf("SOS! need help. Location: %s. %s.", location, strings.TrimSuffix(strings.TrimSpace(notes), "."))
}
