package sms

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/util"

	"github.com/samarth-ai/samarth/pkg/events"
)

// Submitter runs background work. The frame worker pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task func()) error
}

// Subscriber implements queue.SubscribeWorker: it delivers sms.requested
// events to the gateway and ignores every other event type.
type Subscriber struct {
	Deliverer *Deliverer
	Pool      Submitter
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("sms subscriber: unmarshal envelope")
		return err
	}
	if env.Type != events.SMSRequested {
		return nil
	}

	var msg events.SMSData
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		util.Log(ctx).WithError(err).Error("sms subscriber: unmarshal message")
		return err
	}

	dctx := context.WithoutCancel(ctx)
	deliver := func() {
		_ = s.Deliverer.Deliver(dctx, env.ID, msg)
	}
	if s.Pool != nil {
		if err := s.Pool.Submit(ctx, deliver); err != nil {
			slog.WarnContext(ctx, "sms pool full", slog.String("phone", msg.Phone))
		}
		return nil
	}
	go deliver()
	return nil
}
