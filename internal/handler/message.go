package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/unitask/internal/tracker"
)

// MessageTracker is the read-only tracker surface plus the manual read signal.
type MessageTracker interface {
	NotifyRead(messageID string) (tracker.TrackedMessage, bool)
	Snapshot() []tracker.TrackedMessage
}

// SchedulerStatus reports the periodic scan state.
type SchedulerStatus interface {
	Running() bool
	NextRun() time.Time
	Interval() time.Duration
}

type MessageHandler struct {
	tracker   MessageTracker
	scheduler SchedulerStatus
}

func NewMessageHandler(tr MessageTracker, sched SchedulerStatus) *MessageHandler {
	return &MessageHandler{tracker: tr, scheduler: sched}
}

func (h *MessageHandler) ListTracked(w http.ResponseWriter, r *http.Request) {
	msgs := h.tracker.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, ok := h.tracker.NotifyRead(id)
	if !ok {
		writeError(w, http.StatusNotFound, "message not tracked")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) SchedulerState(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]any{"running": false})
		return
	}
	resp := map[string]any{
		"running":  h.scheduler.Running(),
		"interval": h.scheduler.Interval().String(),
	}
	if next := h.scheduler.NextRun(); !next.IsZero() {
		resp["next_run"] = next.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}
