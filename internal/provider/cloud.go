package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// CloudSender sends through Meta's WhatsApp Cloud API. Channels are
// addressed by phone-number-id.
type CloudSender struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewCloudSender creates a Cloud API adapter.
func NewCloudSender(baseURL, token string) *CloudSender {
	return &CloudSender{baseURL: baseURL, token: token, client: defaultHTTPClient()}
}

func (s *CloudSender) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (s *CloudSender) send(ctx context.Context, ch *model.Channel, body map[string]any, code string) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", s.baseURL, ch.ProviderChannelID)
	body["messaging_product"] = "whatsapp"
	var resp cloudSendResponse
	if err := postJSON(ctx, s.client, url, s.headers(), body, &resp); err != nil {
		return "", &SendError{Provider: model.ProviderCloud, Code: code, Message: err.Error()}
	}
	if len(resp.Messages) == 0 {
		return "", &SendError{Provider: model.ProviderCloud, Code: code, Message: "no message id in response"}
	}
	return resp.Messages[0].ID, nil
}

// SendText implements Sender.
func (s *CloudSender) SendText(ctx context.Context, ch *model.Channel, to, body string) (string, error) {
	return s.send(ctx, ch, map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]any{"body": body},
	}, "send_text")
}

// SendMedia implements Sender.
func (s *CloudSender) SendMedia(ctx context.Context, ch *model.Channel, to, mediaType, url, caption string) (string, error) {
	media := map[string]any{"link": url}
	if caption != "" {
		media["caption"] = caption
	}
	return s.send(ctx, ch, map[string]any{
		"to":      to,
		"type":    mediaType,
		mediaType: media,
	}, "send_media")
}

// SendTemplate implements Sender.
func (s *CloudSender) SendTemplate(ctx context.Context, ch *model.Channel, to, templateName, language string, params map[string]string) (string, error) {
	components := []map[string]any{}
	if len(params) > 0 {
		var parameters []map[string]any
		for _, v := range params {
			parameters = append(parameters, map[string]any{"type": "text", "text": v})
		}
		components = append(components, map[string]any{
			"type":       "body",
			"parameters": parameters,
		})
	}
	return s.send(ctx, ch, map[string]any{
		"to":   to,
		"type": "template",
		"template": map[string]any{
			"name":       templateName,
			"language":   map[string]any{"code": language},
			"components": components,
		},
	}, "send_template")
}
