package restutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing Content-Type header")
		}
		if r.Header.Get("X-Key") != "secret" {
			t.Error("missing custom header")
		}
		w.Write([]byte(`{"answer":"42"}`))
	}))
	defer ts.Close()

	var out struct {
		Answer string `json:"answer"`
	}
	err := DoJSON(t.Context(), http.MethodPost, ts.URL, map[string]string{"X-Key": "secret"}, map[string]string{"q": "?"}, &out)
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.Answer != "42" {
		t.Errorf("answer = %q, want %q", out.Answer, "42")
	}
}

func TestDoRawStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := DoRaw(t.Context(), http.MethodGet, ts.URL, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", se.StatusCode, http.StatusTooManyRequests)
	}
}

func TestDoRawHonoursDeadline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := DoRaw(ctx, http.MethodGet, ts.URL, nil, nil); err == nil {
		t.Fatal("expected deadline error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, deadline not honoured", elapsed)
	}
}

func TestFirst(t *testing.T) {
	cfg := map[string]string{"b": "two", "c": ""}
	if got := First(cfg, "def", "a", "b"); got != "two" {
		t.Errorf("First = %q, want %q", got, "two")
	}
	if got := First(cfg, "def", "c"); got != "def" {
		t.Errorf("First = %q, want %q", got, "def")
	}
}
