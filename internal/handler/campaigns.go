package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

// CampaignHandler exposes campaign lifecycle controls. Transitions are
// cooperative: the runner re-reads the status before every send.
type CampaignHandler struct {
	campaigns store.CampaignStore
	q         queue.Queue
	log       *logger.Logger
}

func NewCampaignHandler(campaigns store.CampaignStore, q queue.Queue, log *logger.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		q:         q,
		log:       log,
	}
}

// Get handles GET /api/campaigns/{id}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Start handles POST /api/campaigns/{id}/start
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	switch c.Status {
	case model.CampaignDraft, model.CampaignScheduled:
	default:
		writeError(w, http.StatusConflict, "campaign is "+string(c.Status))
		return
	}

	if err := h.campaigns.SetStatus(r.Context(), c.ID, model.CampaignScheduled); err != nil {
		writeError(w, http.StatusInternalServerError, "update campaign")
		return
	}
	if err := h.enqueueRun(r, c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue campaign")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Pause handles POST /api/campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.CampaignPaused, model.CampaignRunning, model.CampaignScheduled)
}

// Resume handles POST /api/campaigns/{id}/resume. The runner skips
// contacts that already have a result, so the walk continues where the
// pause landed.
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if c.Status != model.CampaignPaused {
		writeError(w, http.StatusConflict, "campaign is "+string(c.Status))
		return
	}

	if err := h.campaigns.SetStatus(r.Context(), c.ID, model.CampaignRunning); err != nil {
		writeError(w, http.StatusInternalServerError, "update campaign")
		return
	}
	if err := h.enqueueRun(r, c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue campaign")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
}

// Cancel handles POST /api/campaigns/{id}/cancel
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.CampaignCancelled,
		model.CampaignScheduled, model.CampaignRunning, model.CampaignPaused)
}

func (h *CampaignHandler) transition(w http.ResponseWriter, r *http.Request, to model.CampaignStatus, from ...model.CampaignStatus) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	allowed := false
	for _, s := range from {
		if c.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		writeError(w, http.StatusConflict, "campaign is "+string(c.Status))
		return
	}

	if err := h.campaigns.SetStatus(r.Context(), c.ID, to); err != nil {
		writeError(w, http.StatusInternalServerError, "update campaign")
		return
	}
	h.log.Info("campaign status changed",
		zap.String("campaign_id", c.ID),
		zap.String("status", string(to)))
	writeJSON(w, http.StatusOK, map[string]string{"status": string(to)})
}

func (h *CampaignHandler) load(w http.ResponseWriter, r *http.Request) (*model.Campaign, bool) {
	id := chi.URLParam(r, "id")
	c, err := h.campaigns.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "campaign not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load campaign")
		return nil, false
	}
	return c, true
}

func (h *CampaignHandler) enqueueRun(r *http.Request, campaignID string) error {
	job, err := queue.NewJob(model.JobCampaign, &queue.CampaignJobPayload{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return h.q.Enqueue(r.Context(), job)
}
