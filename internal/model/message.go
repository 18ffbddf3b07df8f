// Package model defines the canonical data structures shared by the
// messaging pipeline: contacts, conversations, messages, flow state and
// the configuration objects that drive automation.
package model

import (
	"encoding/json"
	"time"
)

// Direction indicates whether a message was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// MessageType is the canonical content type of a message.
type MessageType string

const (
	MessageTypeText        MessageType = "TEXT"
	MessageTypeImage       MessageType = "IMAGE"
	MessageTypeVideo       MessageType = "VIDEO"
	MessageTypeAudio       MessageType = "AUDIO"
	MessageTypeDocument    MessageType = "DOCUMENT"
	MessageTypeSticker     MessageType = "STICKER"
	MessageTypeLocation    MessageType = "LOCATION"
	MessageTypeReaction    MessageType = "REACTION"
	MessageTypeTemplate    MessageType = "TEMPLATE"
	MessageTypeInteractive MessageType = "INTERACTIVE"
	MessageTypeUnknown     MessageType = "UNKNOWN"
)

// MessageStatus is the delivery status of a message. Providers do not
// guarantee status-update ordering, so the model records the latest
// known status rather than enforcing a strict state machine.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
	MessageStatusFailed    MessageStatus = "FAILED"
)

// Message is one normalized wire message, inbound or outbound.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	ChannelID      string `json:"channel_id"`

	// ExternalID is the provider-assigned message id. It is the
	// idempotency key: a second webhook delivery of the same id is a
	// no-op.
	ExternalID string `json:"external_id"`

	Direction Direction   `json:"direction"`
	Type      MessageType `json:"type"`

	Content   string `json:"content,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaMIME string `json:"media_mime,omitempty"`
	Caption   string `json:"caption,omitempty"`

	// Latitude/Longitude are set for LOCATION messages.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	Status       MessageStatus `json:"status"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`

	// FromMe is true when the message was authored by the account that
	// owns the channel (echoed back by the provider).
	FromMe      bool `json:"from_me,omitempty"`
	AIGenerated bool `json:"ai_generated,omitempty"`

	// RawPayload preserves the provider payload for UNKNOWN content
	// types so nothing is dropped silently.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// PreviewLimit is the maximum rune length of a conversation's
// last-message preview.
const PreviewLimit = 120

// Preview returns the message text truncated for conversation listings.
func (m *Message) Preview() string {
	text := m.Content
	if text == "" && m.Caption != "" {
		text = m.Caption
	}
	if text == "" {
		text = "[" + string(m.Type) + "]"
	}
	runes := []rune(text)
	if len(runes) > PreviewLimit {
		return string(runes[:PreviewLimit])
	}
	return text
}
