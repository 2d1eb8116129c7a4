package handler

import (
	"net/http"

	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
)

// StatsSource reports attendee validation statistics.
type StatsSource interface {
	GetStats() attendee.Stats
}

// AttendeeHandler handles attendee endpoints.
type AttendeeHandler struct {
	stats StatsSource
}

// NewAttendeeHandler creates a new attendee handler.
func NewAttendeeHandler(stats StatsSource) *AttendeeHandler {
	return &AttendeeHandler{stats: stats}
}

// Stats handles GET /api/v1/attendees/stats
func (h *AttendeeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.GetStats())
}
