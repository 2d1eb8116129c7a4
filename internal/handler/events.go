package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

// EventReader reads the published workflow events of a session.
type EventReader interface {
	Events(ctx context.Context, userID, sessionID string, limit int) ([]model.WorkflowEvent, error)
}

// ReplayCompleteEvent marks the end of the replayed events.
type ReplayCompleteEvent struct {
	EventCount int `json:"event_count"`
}

// Events handles GET /api/v1/sessions/{id}/events as a server-sent event
// stream. Published events are replayed, then ?follow=true keeps the
// connection open with heartbeats until the client leaves.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.target(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.sessions.State(ctx, user, id); err != nil {
		h.fail(w, id, err)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.events.Events(ctx, user.ID, id, limit)
	if err != nil {
		h.logger.Error("failed to replay events", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read events")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.EventStreamConnections.Inc()
	defer metrics.EventStreamConnections.Dec()

	sendSSEEvent(w, flusher, "connected", map[string]string{"session_id": id})
	for _, ev := range events {
		sendSSEEvent(w, flusher, string(ev.Type), ev)
	}
	sendSSEEvent(w, flusher, "replay_complete", ReplayCompleteEvent{EventCount: len(events)})

	if r.URL.Query().Get("follow") != "true" {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event stream client disconnected", zap.String("session_id", id))
			return
		case t := <-ticker.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{"timestamp": t})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
