package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/crewdeck/crewdeck/internal/notify"
	"github.com/crewdeck/crewdeck/internal/scope"
)

// eventsHandler streams change triggers to clients over server-sent events.
// Session scope managers watch this stream to reconcile their selection when
// the site set or the caller's assignments change.
type eventsHandler struct {
	broker *notify.Broker
}

func newEventsHandler(broker *notify.Broker) *eventsHandler {
	return &eventsHandler{broker: broker}
}

// Stream handles GET /api/v1/events. The subscription lives as long as the
// request; closing the connection unsubscribes.
func (h *eventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.broker.Subscribe(r.Context(), p.OrganizationID)
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload)
			flusher.Flush()
		}
	}
}
