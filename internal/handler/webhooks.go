package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/webhook"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider webhook POSTs, parses them into
// normalized events and hands them to the processor. Parse failures
// are logged but still acknowledged with 200: returning an error would
// only make the provider redeliver a payload we will never accept.
type WebhookHandler struct {
	processor *webhook.Processor
	log       *logger.Logger

	bridgeSecret    string
	metaVerifyToken string
}

func NewWebhookHandler(processor *webhook.Processor, bridgeSecret, metaVerifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:       processor,
		log:             log,
		bridgeSecret:    bridgeSecret,
		metaVerifyToken: metaVerifyToken,
	}
}

// Bridge handles POST /webhooks/bridge
func (h *WebhookHandler) Bridge(w http.ResponseWriter, r *http.Request) {
	if h.bridgeSecret != "" && r.Header.Get("X-Webhook-Secret") != h.bridgeSecret {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}
	h.ingest(w, r, "bridge", webhook.ParseBridge)
}

// Meta handles POST /webhooks/meta for both the Cloud API and
// Instagram; the payload's object field distinguishes them.
func (h *WebhookHandler) Meta(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, "meta", parseMeta)
}

// MetaVerify handles GET /webhooks/meta, Meta's subscription handshake:
// echo hub.challenge when the verify token matches.
func (h *WebhookHandler) MetaVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.metaVerifyToken {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

func (h *WebhookHandler) ingest(w http.ResponseWriter, r *http.Request, source string, parse func([]byte) ([]webhook.Event, error)) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	events, err := parse(body)
	if err != nil {
		h.log.Warn("unparseable webhook payload",
			zap.String("source", source),
			zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.processor.Process(r.Context(), events)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseMeta routes a Meta webhook body by its object field.
func parseMeta(body []byte) ([]webhook.Event, error) {
	var envelope struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Object == "instagram" {
		return webhook.ParseInstagram(body)
	}
	return webhook.ParseCloud(body)
}
