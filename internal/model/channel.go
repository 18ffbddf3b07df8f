package model

import (
	"time"
)

// Provider identifies a messaging provider integration.
type Provider string

const (
	// ProviderBridge is a self-hosted WhatsApp bridge instance.
	ProviderBridge Provider = "whatsapp_bridge"
	// ProviderCloud is Meta's WhatsApp Cloud API.
	ProviderCloud Provider = "whatsapp_cloud"
	// ProviderInstagram is Instagram messaging.
	ProviderInstagram Provider = "instagram"
)

// Channel is one configured messaging endpoint (a phone number or
// business account) through which messages flow.
type Channel struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`

	// ProviderChannelID is how webhook payloads identify this channel:
	// the bridge instance name, the Cloud API phone-number-id, or the
	// Instagram page id.
	ProviderChannelID string `json:"provider_channel_id"`

	// OwnExternalID is the channel's own address, used to detect
	// messages authored by the account itself.
	OwnExternalID string `json:"own_external_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
