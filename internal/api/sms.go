package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samarth-ai/samarth/pkg/events"
	"github.com/samarth-ai/samarth/pkg/sms"
)

// WithSMSRepository exposes gateway delivery records. Without it the
// listings are empty and replays are not found.
func (h *Handler) WithSMSRepository(repo *sms.Repository) *Handler {
	h.smsRepo = repo
	return h
}

// ListDeliveries handles GET /api/v1/sms/deliveries?recipient=&limit=
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	attempts, err := h.smsRepo.ListDeliveries(r.Context(), recipient, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := make([]DeliveryResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, DeliveryResponse{
			ID:            a.ID,
			MessageID:     a.MessageID,
			Recipient:     a.Recipient,
			ResponseCode:  a.ResponseCode,
			AttemptNumber: a.AttemptNumber,
			Status:        a.Status,
			Error:         a.Error,
			DurationMs:    a.DurationMs,
			CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDeadLetters handles GET /api/v1/sms/dead-letters
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.smsRepo.ListDeadLetters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	resp := make([]DeadLetterResponse, 0, len(letters))
	for _, dl := range letters {
		resp = append(resp, DeadLetterResponse{
			ID:        dl.ID,
			MessageID: dl.MessageID,
			Recipient: dl.Recipient,
			LastError: dl.LastError,
			Attempts:  dl.Attempts,
			Replayed:  dl.Replayed,
			CreatedAt: dl.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReplayDeadLetter handles POST /api/v1/sms/dead-letters/{id}/replay
func (h *Handler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	dl, err := h.smsRepo.GetDeadLetter(r.Context(), r.PathValue("id"))
	if errors.Is(err, sms.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load dead letter")
		return
	}

	if err := h.publisher.Emit(r.Context(), events.SMSRequested, dl.Recipient,
		&events.SMSData{Phone: dl.Recipient, Body: dl.Body}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-publish message")
		return
	}
	if err := h.smsRepo.MarkDeadLetterReplayed(r.Context(), dl.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark dead letter replayed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
