package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/staff-portal/internal/constants"
	"github.com/kozaktomas/staff-portal/internal/database"
	"go.uber.org/zap"
)

// EventsHandler serves the login audit trail
type EventsHandler struct {
	events database.LoginEventReader
	log    *zap.Logger
}

func NewEventsHandler(events database.LoginEventReader, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsHandler{events: events, log: log}
}

// Recent lists the latest login attempts, newest first. ?limit caps the
// count at constants.MaxEventsLimit.
func (h *EventsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultEventsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxEventsLimit)
	}

	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("reading login events failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	if events == nil {
		events = []database.LoginEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}
