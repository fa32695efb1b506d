package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// EventLister reads stored program events.
type EventLister interface {
	List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error)
}

// EventHandler serves the committed event log.
type EventHandler struct {
	events EventLister
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventLister, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// ListEvents returns events newest first.
// GET /api/events?market=<id>&since=..&until=..&limit=..&offset=..
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.events.List(r.Context(), r.URL.Query().Get("market"), opts)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
