// Package sms hands alert messages off for delivery: to the device's
// messaging app through an sms: intent, or to an HTTP gateway through the
// event queue.
package sms

import (
	"context"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"

	"github.com/samarth-ai/samarth/pkg/events"
)

// Dispatcher issues a delivery intent for one recipient. It does not wait
// for or report delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, phone, body string)
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, sessionID string, data any) error
}

// IntentURI builds an sms: URI. An empty phone leaves the recipient to the
// messaging app.
func IntentURI(phone, body string) string {
	return "sms:" + url.PathEscape(phone) + "?body=" + strings.ReplaceAll(url.QueryEscape(body), "+", "%20")
}

// IntentDispatcher opens an sms: URI with a desktop or device opener such
// as xdg-open.
type IntentDispatcher struct {
	Opener string
	// Command builds the opener process; tests replace it.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewIntentDispatcher creates a dispatcher using opener, default xdg-open.
func NewIntentDispatcher(opener string) *IntentDispatcher {
	if opener == "" {
		opener = "xdg-open"
	}
	return &IntentDispatcher{Opener: opener, Command: exec.CommandContext}
}

func (d *IntentDispatcher) Dispatch(ctx context.Context, phone, body string) {
	uri := IntentURI(phone, body)
	cmd := d.Command(context.WithoutCancel(ctx), d.Opener, uri)
	if err := cmd.Start(); err != nil {
		slog.ErrorContext(ctx, "sms intent failed",
			slog.String("opener", d.Opener), slog.String("error", err.Error()))
		return
	}
	slog.InfoContext(ctx, "sms intent issued", slog.String("phone", phone))
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.WarnContext(ctx, "sms opener exited with error", slog.String("error", err.Error()))
		}
	}()
}

// LogDispatcher only logs the hand-off.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, phone, body string) {
	slog.InfoContext(ctx, "sms hand-off", slog.String("phone", phone), slog.String("body", body))
}

// QueueDispatcher publishes sms.requested; a Subscriber delivers it.
type QueueDispatcher struct {
	Pub Emitter
}

func (d QueueDispatcher) Dispatch(ctx context.Context, phone, body string) {
	if err := d.Pub.Emit(ctx, events.SMSRequested, phone, &events.SMSData{Phone: phone, Body: body}); err != nil {
		slog.ErrorContext(ctx, "sms request publish failed",
			slog.String("phone", phone), slog.String("error", err.Error()))
	}
}
