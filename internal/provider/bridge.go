package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// BridgeSender sends through a self-hosted WhatsApp bridge. The bridge
// addresses channels by instance name and authenticates with an API
// key header.
type BridgeSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBridgeSender creates a bridge adapter.
func NewBridgeSender(baseURL, apiKey string) *BridgeSender {
	return &BridgeSender{baseURL: baseURL, apiKey: apiKey, client: defaultHTTPClient()}
}

func (s *BridgeSender) headers() map[string]string {
	return map[string]string{"apikey": s.apiKey}
}

type bridgeSendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

// SendText implements Sender.
func (s *BridgeSender) SendText(ctx context.Context, ch *model.Channel, to, body string) (string, error) {
	url := fmt.Sprintf("%s/message/sendText/%s", s.baseURL, ch.ProviderChannelID)
	req := map[string]any{
		"number": to,
		"text":   body,
	}
	var resp bridgeSendResponse
	if err := postJSON(ctx, s.client, url, s.headers(), req, &resp); err != nil {
		return "", &SendError{Provider: model.ProviderBridge, Code: "send_text", Message: err.Error()}
	}
	return resp.Key.ID, nil
}

// SendMedia implements Sender.
func (s *BridgeSender) SendMedia(ctx context.Context, ch *model.Channel, to, mediaType, url, caption string) (string, error) {
	endpoint := fmt.Sprintf("%s/message/sendMedia/%s", s.baseURL, ch.ProviderChannelID)
	req := map[string]any{
		"number":    to,
		"mediatype": mediaType,
		"media":     url,
		"caption":   caption,
	}
	var resp bridgeSendResponse
	if err := postJSON(ctx, s.client, endpoint, s.headers(), req, &resp); err != nil {
		return "", &SendError{Provider: model.ProviderBridge, Code: "send_media", Message: err.Error()}
	}
	return resp.Key.ID, nil
}

// SendTemplate implements Sender. The bridge has no real template
// concept; templates are rendered into plain text before sending.
func (s *BridgeSender) SendTemplate(ctx context.Context, ch *model.Channel, to, templateName, language string, params map[string]string) (string, error) {
	url := fmt.Sprintf("%s/message/sendTemplate/%s", s.baseURL, ch.ProviderChannelID)
	req := map[string]any{
		"number":   to,
		"name":     templateName,
		"language": language,
		"params":   params,
	}
	var resp bridgeSendResponse
	if err := postJSON(ctx, s.client, url, s.headers(), req, &resp); err != nil {
		return "", &SendError{Provider: model.ProviderBridge, Code: "send_template", Message: err.Error()}
	}
	return resp.Key.ID, nil
}
