package sms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/samarth-ai/samarth/pkg/events"
	"github.com/samarth-ai/samarth/pkg/urlvalidation"
)

type recordingEmitter struct {
	mu  sync.Mutex
	evs []events.EventType
	msg []*events.SMSData
}

func (r *recordingEmitter) Emit(_ context.Context, et events.EventType, _ string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, et)
	if m, ok := data.(*events.SMSData); ok {
		r.msg = append(r.msg, m)
	}
	return nil
}

func (r *recordingEmitter) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventType(nil), r.evs...)
}

func TestIntentURI(t *testing.T) {
	tests := []struct {
		phone, body, want string
	}{
		{"+911234", "SOS! need help.", "sms:+911234?body=SOS%21%20need%20help."},
		{"", "Help & hurry", "sms:?body=Help%20%26%20hurry"},
		{"555", "1+1", "sms:555?body=1%2B1"},
	}
	for _, tt := range tests {
		if got := IntentURI(tt.phone, tt.body); got != tt.want {
			t.Errorf("IntentURI(%q, %q) = %q, want %q", tt.phone, tt.body, got, tt.want)
		}
	}
}

func TestIntentDispatcher(t *testing.T) {
	out := filepath.Join(t.TempDir(), "uri")
	d := NewIntentDispatcher("")
	if d.Opener != "xdg-open" {
		t.Errorf("default opener = %q", d.Opener)
	}
	d.Command = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		script := `printf '%s' "$1" > "$2"`
		return exec.CommandContext(ctx, "sh", "-c", script, name, args[0], out)
	}

	d.Dispatch(t.Context(), "555", "Need help")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(out); err == nil && len(b) > 0 {
			if string(b) != "sms:555?body=Need%20help" {
				t.Errorf("opened %q", b)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("opener was not run")
}

func TestQueueDispatcher(t *testing.T) {
	pub := &recordingEmitter{}
	QueueDispatcher{Pub: pub}.Dispatch(t.Context(), "555", "SOS")

	if got := pub.types(); len(got) != 1 || got[0] != events.SMSRequested {
		t.Fatalf("events = %v", got)
	}
	if pub.msg[0].Phone != "555" || pub.msg[0].Body != "SOS" {
		t.Errorf("message = %+v", pub.msg[0])
	}
}

func testConfig(url string) DelivererConfig {
	return DelivererConfig{
		GatewayURL:      url,
		Secret:          "gateway-secret",
		MaxRetries:      3,
		Timeout:         5 * time.Second,
		BackoffInitial:  time.Millisecond,
		BackoffMax:      5 * time.Millisecond,
		CBFailThreshold: 100,
		CBResetTimeout:  time.Minute,
	}
}

func TestDelivererSuccess(t *testing.T) {
	var sigValid atomic.Bool
	var got GatewayMessage

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if Verify("gateway-secret", body, r.Header.Get(SignatureHeader)) {
			sigValid.Store(true)
		}
		if r.Header.Get("X-Samarth-Message") != "msg-1" {
			t.Errorf("message header = %q", r.Header.Get("X-Samarth-Message"))
		}
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	pub := &recordingEmitter{}
	d := NewDeliverer(nil, pub, testConfig(ts.URL), urlvalidation.AllowPrivateIPs())

	if err := d.Deliver(t.Context(), "msg-1", events.SMSData{Phone: "555", Body: "SOS!"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !sigValid.Load() {
		t.Error("gateway signature was not valid")
	}
	if got.To != "555" || got.Body != "SOS!" || got.ID != "msg-1" {
		t.Errorf("gateway message = %+v", got)
	}
	if types := pub.types(); len(types) != 1 || types[0] != events.SMSDelivered {
		t.Errorf("events = %v", types)
	}
}

func TestDelivererRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pub := &recordingEmitter{}
	d := NewDeliverer(nil, pub, testConfig(ts.URL), urlvalidation.AllowPrivateIPs())
	if err := d.Deliver(t.Context(), "msg-2", events.SMSData{Phone: "555", Body: "x"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if pub.msg[0].Attempt != 3 {
		t.Errorf("attempt = %d, want 3", pub.msg[0].Attempt)
	}
}

func TestDelivererDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	pub := &recordingEmitter{}
	d := NewDeliverer(nil, pub, testConfig(ts.URL), urlvalidation.AllowPrivateIPs())
	if err := d.Deliver(t.Context(), "msg-3", events.SMSData{Phone: "555"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if types := pub.types(); len(types) != 1 || types[0] != events.SMSFailed {
		t.Errorf("events = %v", types)
	}
}

func TestDelivererExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	pub := &recordingEmitter{}
	d := NewDeliverer(nil, pub, testConfig(ts.URL), urlvalidation.AllowPrivateIPs())
	if err := d.Deliver(t.Context(), "msg-4", events.SMSData{Phone: "555"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if pub.msg[0].Attempt != 3 || !strings.Contains(pub.msg[0].Error, "503") {
		t.Errorf("failure event = %+v", pub.msg[0])
	}
}

func TestDelivererBreakerPerRecipient(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.MaxRetries = 1
	cfg.CBFailThreshold = 2
	d := NewDeliverer(nil, nil, cfg, urlvalidation.AllowPrivateIPs())

	d.Deliver(t.Context(), "a", events.SMSData{Phone: "111"})
	d.Deliver(t.Context(), "b", events.SMSData{Phone: "111"})

	err := d.Deliver(t.Context(), "c", events.SMSData{Phone: "111"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want open breaker", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}

	d.Deliver(t.Context(), "d", events.SMSData{Phone: "222"})
	if calls.Load() != 3 {
		t.Errorf("other recipient was blocked: calls = %d", calls.Load())
	}
}

func TestDelivererRejectsBadGatewayURL(t *testing.T) {
	d := NewDeliverer(nil, nil, testConfig("ftp://gateway.example"))
	if err := d.Deliver(t.Context(), "x", events.SMSData{Phone: "1"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestSubscriberHandle(t *testing.T) {
	received := make(chan GatewayMessage, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m GatewayMessage
		json.NewDecoder(r.Body).Decode(&m)
		received <- m
	}))
	defer ts.Close()

	sub := &Subscriber{Deliverer: NewDeliverer(nil, nil, testConfig(ts.URL), urlvalidation.AllowPrivateIPs())}

	envelope := func(et events.EventType, data any) []byte {
		raw, _ := json.Marshal(data)
		b, _ := json.Marshal(events.Envelope{ID: "evt-1", Type: et, Timestamp: time.Now().UTC(), Data: raw})
		return b
	}

	if err := sub.Handle(t.Context(), nil, envelope(events.AlertTick, events.AlertTickData{Remaining: 3})); err != nil {
		t.Fatalf("Handle other event: %v", err)
	}
	if err := sub.Handle(t.Context(), nil, []byte("not json")); err == nil {
		t.Error("expected error for malformed message")
	}
	if err := sub.Handle(t.Context(), nil, envelope(events.SMSRequested, events.SMSData{Phone: "555", Body: "SOS"})); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	select {
	case m := <-received:
		if m.To != "555" || m.ID != "evt-1" {
			t.Errorf("delivered = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	select {
	case m := <-received:
		t.Errorf("unexpected extra delivery %+v", m)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"to":"555","body":"SOS"}`)
	sig := Sign("secret", payload)

	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature should start with 'sha256=', got %q", sig)
	}
	if !Verify("secret", payload, sig) {
		t.Error("Verify should return true for valid signature")
	}
	if Verify("other", payload, sig) {
		t.Error("Verify should fail with the wrong secret")
	}
	if Verify("secret", []byte(`{}`), sig) {
		t.Error("Verify should fail for a modified payload")
	}
}
