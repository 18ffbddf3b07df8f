package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// cloudPayload is Meta's WhatsApp Cloud API webhook envelope. One POST
// can batch messages and statuses across multiple entries.
type cloudPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string     `json:"field"`
			Value cloudValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []cloudStatus     `json:"statuses"`
}

type cloudMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text     *struct{ Body string `json:"body"` } `json:"text"`
	Image    *cloudMedia                          `json:"image"`
	Video    *cloudMedia                          `json:"video"`
	Audio    *cloudMedia                          `json:"audio"`
	Document *cloudMedia                          `json:"document"`
	Sticker  *cloudMedia                          `json:"sticker"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Reaction *struct {
		Emoji string `json:"emoji"`
	} `json:"reaction"`
	Button *struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type cloudMedia struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type cloudStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Errors []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors"`
}

var cloudStatusMap = map[string]model.MessageStatus{
	"sent":      model.MessageStatusSent,
	"delivered": model.MessageStatusDelivered,
	"read":      model.MessageStatusRead,
	"failed":    model.MessageStatusFailed,
}

// ParseCloud normalizes a Cloud API webhook POST. The phone-number-id
// in each change's metadata is the provider channel id. A malformed
// message inside a batch becomes an UNKNOWN event rather than failing
// the whole batch.
func ParseCloud(body []byte) ([]Event, error) {
	var p cloudPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode cloud payload: %w", err)
	}

	var events []Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				events = append(events, Event{Kind: change.Field})
				continue
			}
			names := cloudContactNames(&change.Value)
			channelID := change.Value.Metadata.PhoneNumberID

			for _, raw := range change.Value.Messages {
				events = append(events, Event{
					Kind:    "message",
					Message: parseCloudMessage(channelID, raw, names),
				})
			}
			for _, st := range change.Value.Statuses {
				ev := parseCloudStatus(channelID, st)
				if ev == nil {
					continue
				}
				events = append(events, Event{Kind: "status", Status: ev})
			}
		}
	}
	return events, nil
}

func cloudContactNames(v *cloudValue) map[string]string {
	names := make(map[string]string, len(v.Contacts))
	for _, c := range v.Contacts {
		if c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func parseCloudMessage(channelID string, raw json.RawMessage, names map[string]string) *MessageEvent {
	var m cloudMessage
	_ = json.Unmarshal(raw, &m)

	ev := &MessageEvent{
		Provider:          model.ProviderCloud,
		ProviderChannelID: channelID,
		ExternalMessageID: m.ID,
		SenderExternalID:  m.From,
		SenderName:        names[m.From],
	}
	if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && secs > 0 {
		ev.Timestamp = time.Unix(secs, 0).UTC()
	}
	ev.Content = cloudContentOf(&m, raw)
	return ev
}

func cloudContentOf(m *cloudMessage, raw json.RawMessage) Content {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return Content{Type: model.MessageTypeText, Text: m.Text.Body}
		}
	case "image":
		if m.Image != nil {
			return cloudMediaContent(model.MessageTypeImage, m.Image)
		}
	case "video":
		if m.Video != nil {
			return cloudMediaContent(model.MessageTypeVideo, m.Video)
		}
	case "audio":
		if m.Audio != nil {
			return cloudMediaContent(model.MessageTypeAudio, m.Audio)
		}
	case "document":
		if m.Document != nil {
			return cloudMediaContent(model.MessageTypeDocument, m.Document)
		}
	case "sticker":
		if m.Sticker != nil {
			return cloudMediaContent(model.MessageTypeSticker, m.Sticker)
		}
	case "location":
		if m.Location != nil {
			return Content{
				Type:      model.MessageTypeLocation,
				Latitude:  m.Location.Latitude,
				Longitude: m.Location.Longitude,
			}
		}
	case "reaction":
		if m.Reaction != nil {
			return Content{Type: model.MessageTypeReaction, Text: m.Reaction.Emoji}
		}
	case "button":
		if m.Button != nil {
			return Content{Type: model.MessageTypeInteractive, Text: m.Button.Text}
		}
	case "interactive":
		if m.Interactive != nil {
			switch {
			case m.Interactive.ButtonReply != nil:
				return Content{Type: model.MessageTypeInteractive, Text: m.Interactive.ButtonReply.Title}
			case m.Interactive.ListReply != nil:
				return Content{Type: model.MessageTypeInteractive, Text: m.Interactive.ListReply.Title}
			}
		}
	}
	return Content{Type: model.MessageTypeUnknown, Raw: raw}
}

// cloudMediaContent prefers the direct link when present; media sent by
// users carries only an id that must be fetched through the media
// endpoint, which delivery records as the URL scheme "media-id:".
func cloudMediaContent(t model.MessageType, m *cloudMedia) Content {
	url := m.Link
	if url == "" && m.ID != "" {
		url = "media-id:" + m.ID
	}
	return Content{
		Type:      t,
		MediaURL:  url,
		MediaMIME: m.MimeType,
		Caption:   m.Caption,
	}
}

func parseCloudStatus(channelID string, st cloudStatus) *StatusEvent {
	status, ok := cloudStatusMap[strings.ToLower(st.Status)]
	if !ok {
		return nil
	}
	ev := &StatusEvent{
		Provider:          model.ProviderCloud,
		ProviderChannelID: channelID,
		ExternalMessageID: st.ID,
		Status:            status,
	}
	if len(st.Errors) > 0 {
		ev.ErrorCode = strconv.Itoa(st.Errors[0].Code)
		ev.ErrorMessage = st.Errors[0].Title
	}
	return ev
}
