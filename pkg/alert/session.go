package alert

import (
	"slices"
	"time"

	"github.com/samarth-ai/samarth/pkg/contacts"
)

// State is a step of the emergency flow.
type State string

const (
	Idle       State = "idle"
	Confirm    State = "confirm"
	Countdown  State = "countdown"
	Dispatched State = "dispatched"
)

// Location texts shown while or instead of a resolved position.
const (
	LocationPending     = "Fetching location..."
	LocationUnknown     = "Unknown Location"
	LocationUnsupported = "Geolocation not supported"
)

// DefaultMaxHistory is the default transition history cap per session.
const DefaultMaxHistory = 50

// Transition records one state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the transient state of one emergency flow. It is owned by the
// Coordinator and only read through Snapshot.
type Session struct {
	ID               string
	State            State
	Location         string
	LocationResolved bool
	Draft            string
	DraftReady       bool
	Remaining        int
	Message          string
	OpenedAt         time.Time
	History          []Transition

	maxHistory int
}

func newSession(id string, countdown, maxHistory int) *Session {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Session{
		ID:         id,
		State:      Idle,
		Location:   LocationPending,
		Remaining:  countdown,
		OpenedAt:   time.Now(),
		maxHistory: maxHistory,
	}
}

// record moves the session to a new state and appends to the history,
// evicting the oldest 10% of entries when the cap is reached.
func (s *Session) record(to State, trigger string) Transition {
	if len(s.History) >= s.maxHistory {
		evict := s.maxHistory / 10
		if evict < 1 {
			evict = 1
		}
		s.History = s.History[evict:]
	}
	t := Transition{From: s.State, To: to, Trigger: trigger, Timestamp: time.Now()}
	s.History = append(s.History, t)
	s.State = to
	return t
}

// Snapshot is a read-only view of the flow.
type Snapshot struct {
	SessionID        string             `json:"session_id,omitempty"`
	State            State              `json:"state"`
	Location         string             `json:"location,omitempty"`
	LocationResolved bool               `json:"location_resolved"`
	Draft            string             `json:"draft,omitempty"`
	DraftReady       bool               `json:"draft_ready"`
	Remaining        int                `json:"remaining"`
	Message          string             `json:"message,omitempty"`
	Contacts         []contacts.Contact `json:"contacts,omitempty"`
	History          []Transition       `json:"history,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	if s == nil {
		return Snapshot{State: Idle}
	}
	return Snapshot{
		SessionID:        s.ID,
		State:            s.State,
		Location:         s.Location,
		LocationResolved: s.LocationResolved,
		Draft:            s.Draft,
		DraftReady:       s.DraftReady,
		Remaining:        s.Remaining,
		Message:          s.Message,
		History:          slices.Clone(s.History),
	}
}
