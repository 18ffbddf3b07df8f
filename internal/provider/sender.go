// Package provider implements the outbound send adapters for each
// messaging provider. Adapters are swappable strategies behind one
// interface; every send returns the provider-assigned message id used
// to correlate later status-update webhooks back to the canonical
// message.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// Sender pushes one message through a provider on behalf of a channel.
type Sender interface {
	SendText(ctx context.Context, ch *model.Channel, to, body string) (string, error)
	SendMedia(ctx context.Context, ch *model.Channel, to, mediaType, url, caption string) (string, error)
	SendTemplate(ctx context.Context, ch *model.Channel, to, templateName, language string, params map[string]string) (string, error)
}

// SendError is a provider send failure with a machine-readable code.
type SendError struct {
	Provider model.Provider
	Code     string
	Message  string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failed (%s): %s", e.Provider, e.Code, e.Message)
}

// Registry resolves the sender for a channel's provider.
type Registry struct {
	senders map[model.Provider]Sender
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[model.Provider]Sender)}
}

// Register installs the adapter for a provider.
func (r *Registry) Register(p model.Provider, s Sender) {
	r.senders[p] = s
}

// ForChannel returns the sender for the channel's provider.
func (r *Registry) ForChannel(ch *model.Channel) (Sender, error) {
	s, ok := r.senders[ch.Provider]
	if !ok {
		return nil, fmt.Errorf("no sender registered for provider %q", ch.Provider)
	}
	return s, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// postJSON posts a JSON body and decodes a JSON response, returning an
// error for non-2xx statuses with the body included for diagnostics.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
