// Package api exposes the assistant to the UI over REST and a server-sent
// event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/pkg/alert"
	"github.com/samarth-ai/samarth/pkg/contacts"
	"github.com/samarth-ai/samarth/pkg/events"
	"github.com/samarth-ai/samarth/pkg/pipeline"
	"github.com/samarth-ai/samarth/pkg/prompts"
	"github.com/samarth-ai/samarth/pkg/sms"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// Handler provides the REST endpoints.
type Handler struct {
	pipeline  *pipeline.Pipeline
	alerts    *alert.Coordinator
	store     contacts.Store
	catalog   *prompts.Catalog
	publisher *events.Publisher
	smsRepo   *sms.Repository
}

// NewHandler creates a new API handler.
func NewHandler(p *pipeline.Pipeline, alerts *alert.Coordinator, store contacts.Store, catalog *prompts.Catalog, publisher *events.Publisher) *Handler {
	return &Handler{pipeline: p, alerts: alerts, store: store, catalog: catalog, publisher: publisher}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/v1/analyze", h.Analyze)
	mux.HandleFunc("GET /api/v1/live", h.LiveStatus)
	mux.HandleFunc("POST /api/v1/live/start", h.StartLive)
	mux.HandleFunc("POST /api/v1/live/stop", h.StopLive)
	mux.HandleFunc("POST /api/v1/replay", h.Replay)
	mux.HandleFunc("POST /api/v1/speak", h.Speak)
	mux.HandleFunc("GET /api/v1/result", h.Result)
	mux.HandleFunc("POST /api/v1/clear", h.Clear)
	mux.HandleFunc("GET /api/v1/prompts", h.Prompts)

	mux.HandleFunc("GET /api/v1/alert", h.AlertSnapshot)
	mux.HandleFunc("POST /api/v1/alert", h.AlertOpen)
	mux.HandleFunc("POST /api/v1/alert/open", h.AlertOpen)
	mux.HandleFunc("POST /api/v1/alert/confirm", h.AlertConfirm)
	mux.HandleFunc("POST /api/v1/alert/send-now", h.AlertSendNow)
	mux.HandleFunc("POST /api/v1/alert/cancel", h.AlertCancel)
	mux.HandleFunc("POST /api/v1/alert/notify", h.AlertNotify)

	mux.HandleFunc("GET /api/v1/contacts", h.ListContacts)
	mux.HandleFunc("PUT /api/v1/contacts", h.ReplaceContacts)
	mux.HandleFunc("POST /api/v1/contacts", h.AddContact)
	mux.HandleFunc("DELETE /api/v1/contacts/{id}", h.RemoveContact)
	mux.HandleFunc("GET /api/v1/profile", h.GetProfile)
	mux.HandleFunc("PUT /api/v1/profile", h.PutProfile)

	mux.HandleFunc("GET /api/v1/sms/deliveries", h.ListDeliveries)
	mux.HandleFunc("GET /api/v1/sms/dead-letters", h.ListDeadLetters)
	mux.HandleFunc("POST /api/v1/sms/dead-letters/{id}/replay", h.ReplayDeadLetter)

	mux.HandleFunc("GET /api/v1/events", h.Events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrTurnInProgress), errors.Is(err, alert.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrUnknownKind), errors.Is(err, contacts.ErrInvalidContact):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func parseAnalyze(w http.ResponseWriter, r *http.Request) (AnalyzeRequest, engine.QualityTier, bool) {
	var req AnalyzeRequest
	if !decode(w, r, &req, false) {
		return req, "", false
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return req, "", false
	}
	var tier engine.QualityTier
	if req.Tier != "" {
		t, err := engine.ParseTier(req.Tier)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return req, "", false
		}
		tier = t
	}
	return req, tier, true
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Analyze handles POST /api/v1/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, tier, ok := parseAnalyze(w, r)
	if !ok {
		return
	}
	res, err := h.pipeline.RunOnce(r.Context(), prompts.Kind(req.Kind), tier)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) liveResponse(changed bool) LiveResponse {
	return LiveResponse{Changed: changed, Live: h.pipeline.Live(), Dropped: h.pipeline.Dropped()}
}

// LiveStatus handles GET /api/v1/live
func (h *Handler) LiveStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.liveResponse(false))
}

// StartLive handles POST /api/v1/live/start
func (h *Handler) StartLive(w http.ResponseWriter, r *http.Request) {
	req, tier, ok := parseAnalyze(w, r)
	if !ok {
		return
	}
	interval := time.Duration(req.IntervalMs) * time.Millisecond
	started, err := h.pipeline.StartLive(r.Context(), prompts.Kind(req.Kind), tier, interval)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.liveResponse(started))
}

// StopLive handles POST /api/v1/live/stop
func (h *Handler) StopLive(w http.ResponseWriter, _ *http.Request) {
	stopped := h.pipeline.StopLive()
	writeJSON(w, http.StatusOK, h.liveResponse(stopped))
}

// Replay handles POST /api/v1/replay
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	played, err := h.pipeline.ReplayLast(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PlayedResponse{Played: played})
}

// Speak handles POST /api/v1/speak
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if !decode(w, r, &req, true) {
		return
	}
	played, err := h.pipeline.Speak(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PlayedResponse{Played: played})
}

// Result handles GET /api/v1/result
func (h *Handler) Result(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Current())
}

// Clear handles POST /api/v1/clear
func (h *Handler) Clear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Clear())
}

// Prompts handles GET /api/v1/prompts
func (h *Handler) Prompts(w http.ResponseWriter, _ *http.Request) {
	kinds := h.catalog.Kinds()
	resp := make([]prompts.Prompt, 0, len(kinds))
	for _, k := range kinds {
		if p, ok := h.catalog.Get(k); ok {
			resp = append(resp, p)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AlertSnapshot handles GET /api/v1/alert
func (h *Handler) AlertSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.alerts.Snapshot(r.Context()))
}

// AlertOpen handles POST /api/v1/alert/open
func (h *Handler) AlertOpen(w http.ResponseWriter, r *http.Request) {
	snap, err := h.alerts.Open(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AlertConfirm handles POST /api/v1/alert/confirm
func (h *Handler) AlertConfirm(w http.ResponseWriter, r *http.Request) {
	snap, err := h.alerts.Confirm(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AlertSendNow handles POST /api/v1/alert/send-now
func (h *Handler) AlertSendNow(w http.ResponseWriter, r *http.Request) {
	snap, err := h.alerts.SendNow(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AlertCancel handles POST /api/v1/alert/cancel
func (h *Handler) AlertCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Cancel(r.Context()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.alerts.Snapshot(r.Context()))
}

// AlertNotify handles POST /api/v1/alert/notify
func (h *Handler) AlertNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if !decode(w, r, &req, true) {
		return
	}
	if req.All {
		n, err := h.alerts.NotifyAll(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, NotifyResponse{Issued: n})
		return
	}
	if err := h.alerts.Notify(r.Context(), req.Phone); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, NotifyResponse{Issued: 1})
}

// ListContacts handles GET /api/v1/contacts
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.Contacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load contacts")
		return
	}
	if list == nil {
		list = []contacts.Contact{}
	}
	writeJSON(w, http.StatusOK, ContactsResponse{Contacts: list})
}

// ReplaceContacts handles PUT /api/v1/contacts
func (h *Handler) ReplaceContacts(w http.ResponseWriter, r *http.Request) {
	var req ContactsResponse
	if !decode(w, r, &req, false) {
		return
	}
	for i, c := range req.Contacts {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("contact %d: %v", i, contacts.ErrInvalidContact))
			return
		}
		if c.ID == "" {
			req.Contacts[i].ID = xid.New().String()
		}
	}
	if err := h.store.SaveContacts(r.Context(), req.Contacts); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save contacts")
		return
	}
	h.ListContacts(w, r)
}

// AddContact handles POST /api/v1/contacts
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !decode(w, r, &req, false) {
		return
	}
	c, err := contacts.Add(r.Context(), h.store, req.Name, req.Phone)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// RemoveContact handles DELETE /api/v1/contacts/{id}
func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := contacts.Remove(r.Context(), h.store, r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile handles GET /api/v1/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	name, err := h.store.UserName(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Name: name})
}

// PutProfile handles PUT /api/v1/profile
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decode(w, r, &req, false) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := h.store.SaveUserName(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Name: name})
}
