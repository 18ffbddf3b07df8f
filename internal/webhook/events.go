// Package webhook normalizes provider webhook payloads into canonical
// messages and owns contact/conversation upsert and de-duplication.
// Each provider gets one pure parsing function that maps its wire
// format onto a common tagged-variant event type; the shared Processor
// applies the events exactly once per external message id.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// Content is the provider-agnostic message content union. Exactly the
// fields matching Type are set; unmapped provider types become UNKNOWN
// with the raw payload preserved.
type Content struct {
	Type      model.MessageType
	Text      string
	MediaURL  string
	MediaMIME string
	Caption   string
	Latitude  float64
	Longitude float64
	Raw       json.RawMessage
}

// MessageEvent is a normalized message-received event.
type MessageEvent struct {
	Provider          model.Provider
	ProviderChannelID string
	ExternalMessageID string
	SenderExternalID  string
	SenderName        string
	FromMe            bool
	Timestamp         time.Time
	Content           Content
}

// StatusEvent is a normalized delivery status update.
type StatusEvent struct {
	Provider          model.Provider
	ProviderChannelID string
	ExternalMessageID string
	Status            model.MessageStatus
	ErrorCode         string
	ErrorMessage      string
}

// Event is one normalized webhook event. Exactly one of Message and
// Status is set; both nil means the event kind is recognized but not
// actionable (connection state, pairing updates) and is acknowledged
// without processing.
type Event struct {
	Kind    string
	Message *MessageEvent
	Status  *StatusEvent
}
