package events

import (
	"encoding/json"
	"testing"
)

func TestEmitFansOutLocally(t *testing.T) {
	p := NewPublisher(nil, "pipeline", "events")
	ch := p.Subscribe("ui", 4)
	defer p.Unsubscribe("ui")

	if err := p.Emit(t.Context(), TurnCompleted, "sess-1", &TurnData{Kind: "sign", Text: "hello"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	env := <-ch
	if env.Type != TurnCompleted {
		t.Errorf("type = %q, want %q", env.Type, TurnCompleted)
	}
	if env.Source != "pipeline" || env.SessionID != "sess-1" {
		t.Errorf("envelope = %+v", env)
	}
	if env.ID == "" || env.Timestamp.IsZero() {
		t.Error("envelope missing id or timestamp")
	}
	var data TurnData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Text != "hello" {
		t.Errorf("text = %q, want %q", data.Text, "hello")
	}
}

func TestEmitDropsWhenSubscriberFull(t *testing.T) {
	p := NewPublisher(nil, "test", "events")
	ch := p.Subscribe("slow", 1)

	for i := 0; i < 3; i++ {
		if err := p.Emit(t.Context(), AlertTick, "", &AlertTickData{Remaining: 5 - i}); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	if got := len(ch); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}

	p.Unsubscribe("slow")
	<-ch
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}

func TestSubscribeReplacesExistingID(t *testing.T) {
	p := NewPublisher(nil, "test", "events")
	first := p.Subscribe("ui", 4)
	second := p.Subscribe("ui", 4)
	defer p.Unsubscribe("ui")

	if _, ok := <-first; ok {
		t.Fatal("first channel should be closed by the second Subscribe")
	}
	if err := p.Emit(t.Context(), LiveStarted, "sess-1", &LiveData{}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := len(second); got != 1 {
		t.Errorf("buffered on replacement = %d, want 1", got)
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	if err := p.Emit(t.Context(), SystemError, "", &ErrorData{Error: "x"}); err != nil {
		t.Errorf("Emit on nil publisher: %v", err)
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []EventType{
		TurnCompleted, TurnDropped, LiveStarted, LiveStopped,
		AlertOpened, AlertState, AlertTick, AlertDraft, AlertDispatched, AlertCancelled,
		SMSRequested, SMSDelivered, SMSFailed, SystemError,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}
