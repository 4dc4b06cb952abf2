package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	TurnCompleted EventType = "turn.completed"
	TurnDropped   EventType = "turn.dropped"
	LiveStarted   EventType = "live.started"
	LiveStopped   EventType = "live.stopped"

	AlertOpened     EventType = "alert.opened"
	AlertState      EventType = "alert.state"
	AlertTick       EventType = "alert.tick"
	AlertDraft      EventType = "alert.draft"
	AlertDispatched EventType = "alert.dispatched"
	AlertCancelled  EventType = "alert.cancelled"

	SMSRequested EventType = "sms.requested"
	SMSDelivered EventType = "sms.delivered"
	SMSFailed    EventType = "sms.failed"

	SystemError EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TurnData is the payload for turn.completed events.
type TurnData struct {
	Kind       string `json:"kind"`
	Tier       string `json:"tier"`
	Text       string `json:"text"`
	Spoken     bool   `json:"spoken"`
	Live       bool   `json:"live"`
	DurationMs int64  `json:"duration_ms"`
}

// TurnDroppedData is the payload for turn.dropped events.
type TurnDroppedData struct {
	Kind    string `json:"kind"`
	Dropped int64  `json:"dropped"`
}

// LiveData is the payload for live.started and live.stopped events.
type LiveData struct {
	Kind       string `json:"kind"`
	Tier       string `json:"tier"`
	IntervalMs int64  `json:"interval_ms"`
}

// AlertStateData is the payload for alert.state and alert.cancelled events.
type AlertStateData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger"`
}

// AlertTickData is the payload for alert.tick events.
type AlertTickData struct {
	Remaining int `json:"remaining"`
}

// AlertDraftData is the payload for alert.draft events.
type AlertDraftData struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// AlertDispatchedData is the payload for alert.dispatched events.
type AlertDispatchedData struct {
	Message    string `json:"message"`
	Location   string `json:"location"`
	Contacts   int    `json:"contacts"`
	DraftReady bool   `json:"draft_ready"`
}

// SMSData is the payload for sms.* events.
type SMSData struct {
	Phone   string `json:"phone"`
	Body    string `json:"body"`
	Attempt int    `json:"attempt,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorData is the payload for error events.
type ErrorData struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}
