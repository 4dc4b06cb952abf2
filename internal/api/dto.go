package api

import (
	"github.com/samarth-ai/samarth/pkg/contacts"
	"github.com/samarth-ai/samarth/pkg/pipeline"
)

// AnalyzeRequest is the body of POST /api/v1/analyze and /api/v1/live/start.
type AnalyzeRequest struct {
	Kind       string `json:"kind"`
	Tier       string `json:"tier,omitempty"`
	IntervalMs int64  `json:"interval_ms,omitempty"`
}

// LiveResponse reports the live loop.
type LiveResponse struct {
	Changed bool                `json:"changed"`
	Live    pipeline.LiveStatus `json:"live"`
	Dropped int64               `json:"dropped"`
}

// SpeakRequest is the body of POST /api/v1/speak. Empty text speaks the
// current result.
type SpeakRequest struct {
	Text string `json:"text,omitempty"`
}

// PlayedResponse reports whether audio was played.
type PlayedResponse struct {
	Played bool `json:"played"`
}

// NotifyRequest is the body of POST /api/v1/alert/notify. All hands the
// message to every contact; otherwise Phone (possibly empty) is used.
type NotifyRequest struct {
	Phone string `json:"phone"`
	All   bool   `json:"all,omitempty"`
}

// NotifyResponse reports how many hand-offs were issued.
type NotifyResponse struct {
	Issued int `json:"issued"`
}

// ContactRequest is the body of POST /api/v1/contacts.
type ContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ContactsResponse lists contacts.
type ContactsResponse struct {
	Contacts []contacts.Contact `json:"contacts"`
}

// ProfileRequest is the body of PUT /api/v1/profile.
type ProfileRequest struct {
	Name string `json:"name"`
}

// ProfileResponse is the user profile.
type ProfileResponse struct {
	Name string `json:"name"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeliveryResponse is one SMS gateway attempt.
type DeliveryResponse struct {
	ID            string `json:"id"`
	MessageID     string `json:"message_id"`
	Recipient     string `json:"recipient"`
	ResponseCode  int    `json:"response_code"`
	AttemptNumber int    `json:"attempt_number"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	CreatedAt     string `json:"created_at"`
}

// DeadLetterResponse is an SMS that exhausted its retries.
type DeadLetterResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	LastError string `json:"last_error"`
	Attempts  int    `json:"attempts"`
	Replayed  bool   `json:"replayed"`
	CreatedAt string `json:"created_at"`
}
