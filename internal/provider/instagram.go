package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// InstagramSender sends through the Instagram messaging API on behalf
// of a page.
type InstagramSender struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewInstagramSender creates an Instagram adapter.
func NewInstagramSender(baseURL, token string) *InstagramSender {
	return &InstagramSender{baseURL: baseURL, token: token, client: defaultHTTPClient()}
}

type instagramSendResponse struct {
	MessageID string `json:"message_id"`
}

func (s *InstagramSender) send(ctx context.Context, message map[string]any, to, code string) (string, error) {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", s.baseURL, s.token)
	req := map[string]any{
		"recipient": map[string]any{"id": to},
		"message":   message,
	}
	var resp instagramSendResponse
	if err := postJSON(ctx, s.client, url, nil, req, &resp); err != nil {
		return "", &SendError{Provider: model.ProviderInstagram, Code: code, Message: err.Error()}
	}
	return resp.MessageID, nil
}

// SendText implements Sender.
func (s *InstagramSender) SendText(ctx context.Context, ch *model.Channel, to, body string) (string, error) {
	return s.send(ctx, map[string]any{"text": body}, to, "send_text")
}

// SendMedia implements Sender.
func (s *InstagramSender) SendMedia(ctx context.Context, ch *model.Channel, to, mediaType, url, caption string) (string, error) {
	return s.send(ctx, map[string]any{
		"attachment": map[string]any{
			"type":    mediaType,
			"payload": map[string]any{"url": url},
		},
	}, to, "send_media")
}

// SendTemplate implements Sender. Instagram has no WhatsApp-style
// templates; the rendered body is sent as text.
func (s *InstagramSender) SendTemplate(ctx context.Context, ch *model.Channel, to, templateName, language string, params map[string]string) (string, error) {
	body := templateName
	for _, v := range params {
		body += " " + v
	}
	return s.send(ctx, map[string]any{"text": body}, to, "send_template")
}
