package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

// DeadLetterHandler exposes the dead-letter queue for inspection and
// replay.
type DeadLetterHandler struct {
	deadLetters store.DeadLetterStore
	q           queue.Queue
	log         *logger.Logger
}

func NewDeadLetterHandler(deadLetters store.DeadLetterStore, q queue.Queue, log *logger.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{
		deadLetters: deadLetters,
		q:           q,
		log:         log,
	}
}

// List handles GET /api/dead-letters
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	letters, err := h.deadLetters.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list dead letters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dead_letters": letters,
		"count":        len(letters),
	})
}

// Replay handles POST /api/dead-letters/{id}/replay: the job goes back
// on the queue with a fresh attempt budget.
func (h *DeadLetterHandler) Replay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dl, err := h.deadLetters.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load dead letter")
		return
	}
	if dl.ReplayedAt != nil {
		writeError(w, http.StatusConflict, "already replayed")
		return
	}

	job := dl.Job
	job.AttemptCount = 0
	job.ScheduledAt = time.Now()
	if err := h.q.Enqueue(r.Context(), &job); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue job")
		return
	}
	if err := h.deadLetters.MarkReplayed(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "mark replayed")
		return
	}

	h.log.Info("dead letter replayed",
		zap.String("dead_letter_id", id),
		zap.String("job_id", job.ID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "replayed",
		"job_id": job.ID,
	})
}
