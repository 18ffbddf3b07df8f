package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// instagramPayload is the Messenger-platform webhook envelope used for
// Instagram messaging. The entry id is the page id, which doubles as
// the provider channel id.
type instagramPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string               `json:"id"`
		Messaging []instagramMessaging `json:"messaging"`
	} `json:"entry"`
}

type instagramMessaging struct {
	Sender    struct{ ID string `json:"id"` } `json:"sender"`
	Recipient struct{ ID string `json:"id"` } `json:"recipient"`
	Timestamp int64                           `json:"timestamp"`

	Message *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`

	Delivery *struct {
		MIDs []string `json:"mids"`
	} `json:"delivery"`

	Read *struct {
		MID string `json:"mid"`
	} `json:"read"`
}

var instagramAttachmentTypes = map[string]model.MessageType{
	"image": model.MessageTypeImage,
	"video": model.MessageTypeVideo,
	"audio": model.MessageTypeAudio,
	"file":  model.MessageTypeDocument,
	"share": model.MessageTypeUnknown,
}

// ParseInstagram normalizes an Instagram messaging webhook POST.
// Delivery events fan out to one status event per acknowledged mid.
func ParseInstagram(body []byte) ([]Event, error) {
	var p instagramPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode instagram payload: %w", err)
	}

	var events []Event
	for _, entry := range p.Entry {
		for i := range entry.Messaging {
			events = append(events, parseInstagramMessaging(entry.ID, &entry.Messaging[i])...)
		}
	}
	return events, nil
}

func parseInstagramMessaging(pageID string, m *instagramMessaging) []Event {
	switch {
	case m.Message != nil:
		ev := &MessageEvent{
			Provider:          model.ProviderInstagram,
			ProviderChannelID: pageID,
			ExternalMessageID: m.Message.MID,
			SenderExternalID:  m.Sender.ID,
			FromMe:            m.Message.IsEcho,
		}
		// Echoes name the page as sender; the counterpart is the
		// recipient.
		if m.Message.IsEcho {
			ev.SenderExternalID = m.Recipient.ID
		}
		if m.Timestamp > 0 {
			ev.Timestamp = time.UnixMilli(m.Timestamp).UTC()
		}
		ev.Content = instagramContentOf(m)
		return []Event{{Kind: "message", Message: ev}}

	case m.Delivery != nil:
		events := make([]Event, 0, len(m.Delivery.MIDs))
		for _, mid := range m.Delivery.MIDs {
			events = append(events, Event{Kind: "delivery", Status: &StatusEvent{
				Provider:          model.ProviderInstagram,
				ProviderChannelID: pageID,
				ExternalMessageID: mid,
				Status:            model.MessageStatusDelivered,
			}})
		}
		return events

	case m.Read != nil && m.Read.MID != "":
		return []Event{{Kind: "read", Status: &StatusEvent{
			Provider:          model.ProviderInstagram,
			ProviderChannelID: pageID,
			ExternalMessageID: m.Read.MID,
			Status:            model.MessageStatusRead,
		}}}

	default:
		return []Event{{Kind: "messaging"}}
	}
}

func instagramContentOf(m *instagramMessaging) Content {
	if m.Message.Text != "" {
		return Content{Type: model.MessageTypeText, Text: m.Message.Text}
	}
	if len(m.Message.Attachments) > 0 {
		att := m.Message.Attachments[0]
		t, ok := instagramAttachmentTypes[att.Type]
		if !ok || t == model.MessageTypeUnknown {
			raw, _ := json.Marshal(m.Message)
			return Content{Type: model.MessageTypeUnknown, MediaURL: att.Payload.URL, Raw: raw}
		}
		return Content{Type: t, MediaURL: att.Payload.URL}
	}
	raw, _ := json.Marshal(m.Message)
	return Content{Type: model.MessageTypeUnknown, Raw: raw}
}
