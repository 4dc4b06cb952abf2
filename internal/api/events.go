package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/xid"
)

// Events handles GET /api/v1/events as a server-sent event stream. The
// optional "prefix" query parameter filters by event type, e.g. "alert.".
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	prefix := r.URL.Query().Get("prefix")

	id := "sse-" + xid.New().String()
	ch := h.publisher.Subscribe(id, 64)
	defer h.publisher.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if prefix != "" && !strings.HasPrefix(string(env.Type), prefix) {
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Type, data)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
