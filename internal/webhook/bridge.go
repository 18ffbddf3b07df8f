package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// bridgePayload is the self-hosted WhatsApp bridge envelope. The bridge
// emits one event per POST, named by the event field.
type bridgePayload struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type bridgeKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

type bridgeMessageData struct {
	Key              bridgeKey       `json:"key"`
	PushName         string          `json:"pushName"`
	Message          json.RawMessage `json:"message"`
	MessageTimestamp int64           `json:"messageTimestamp"`
}

// bridgeContent mirrors the Baileys message union. Only the variants we
// map are declared; anything else falls through to UNKNOWN.
type bridgeContent struct {
	Conversation    string `json:"conversation"`
	ExtendedText    *struct{ Text string `json:"text"` } `json:"extendedTextMessage"`
	ImageMessage    *bridgeMedia                         `json:"imageMessage"`
	VideoMessage    *bridgeMedia                         `json:"videoMessage"`
	AudioMessage    *bridgeMedia                         `json:"audioMessage"`
	DocumentMessage *bridgeMedia                         `json:"documentMessage"`
	StickerMessage  *bridgeMedia                         `json:"stickerMessage"`
	LocationMessage *struct {
		Latitude  float64 `json:"degreesLatitude"`
		Longitude float64 `json:"degreesLongitude"`
	} `json:"locationMessage"`
	ReactionMessage *struct{ Text string `json:"text"` } `json:"reactionMessage"`
	ButtonsResponse *struct {
		SelectedDisplayText string `json:"selectedDisplayText"`
	} `json:"buttonsResponseMessage"`
	ListResponse *struct {
		Title string `json:"title"`
	} `json:"listResponseMessage"`
}

type bridgeMedia struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
}

type bridgeStatusData struct {
	KeyID  string    `json:"keyId"`
	Key    bridgeKey `json:"key"`
	Status string    `json:"status"`
	Error  string    `json:"error"`
}

// bridgeStatusMap translates the bridge's ack vocabulary. SERVER_ACK
// means accepted by WhatsApp servers, DELIVERY_ACK means delivered to
// the device.
var bridgeStatusMap = map[string]model.MessageStatus{
	"PENDING":      model.MessageStatusPending,
	"SERVER_ACK":   model.MessageStatusSent,
	"DELIVERY_ACK": model.MessageStatusDelivered,
	"READ":         model.MessageStatusRead,
	"PLAYED":       model.MessageStatusRead,
	"ERROR":        model.MessageStatusFailed,
}

// ParseBridge normalizes one bridge webhook POST. The instance name is
// the provider channel id.
func ParseBridge(body []byte) ([]Event, error) {
	var p bridgePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode bridge payload: %w", err)
	}

	switch p.Event {
	case "messages.upsert":
		ev, err := parseBridgeMessage(p.Instance, p.Data)
		if err != nil {
			return nil, err
		}
		return []Event{{Kind: p.Event, Message: ev}}, nil

	case "messages.update":
		ev, err := parseBridgeStatus(p.Instance, p.Data)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			return []Event{{Kind: p.Event}}, nil
		}
		return []Event{{Kind: p.Event, Status: ev}}, nil

	default:
		// connection.update, qrcode.updated and friends.
		return []Event{{Kind: p.Event}}, nil
	}
}

func parseBridgeMessage(instance string, data json.RawMessage) (*MessageEvent, error) {
	var d bridgeMessageData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode bridge message: %w", err)
	}
	if d.Key.ID == "" {
		return nil, fmt.Errorf("bridge message without key id")
	}

	ev := &MessageEvent{
		Provider:          model.ProviderBridge,
		ProviderChannelID: instance,
		ExternalMessageID: d.Key.ID,
		SenderExternalID:  bridgeJIDToExternalID(d.Key.RemoteJID),
		SenderName:        d.PushName,
		FromMe:            d.Key.FromMe,
	}
	if d.MessageTimestamp > 0 {
		ev.Timestamp = time.Unix(d.MessageTimestamp, 0).UTC()
	}
	ev.Content = bridgeContentOf(d.Message)
	return ev, nil
}

func bridgeContentOf(raw json.RawMessage) Content {
	var c bridgeContent
	if err := json.Unmarshal(raw, &c); err != nil {
		return Content{Type: model.MessageTypeUnknown, Raw: raw}
	}

	switch {
	case c.Conversation != "":
		return Content{Type: model.MessageTypeText, Text: c.Conversation}
	case c.ExtendedText != nil:
		return Content{Type: model.MessageTypeText, Text: c.ExtendedText.Text}
	case c.ImageMessage != nil:
		return mediaContent(model.MessageTypeImage, c.ImageMessage)
	case c.VideoMessage != nil:
		return mediaContent(model.MessageTypeVideo, c.VideoMessage)
	case c.AudioMessage != nil:
		return mediaContent(model.MessageTypeAudio, c.AudioMessage)
	case c.DocumentMessage != nil:
		return mediaContent(model.MessageTypeDocument, c.DocumentMessage)
	case c.StickerMessage != nil:
		return mediaContent(model.MessageTypeSticker, c.StickerMessage)
	case c.LocationMessage != nil:
		return Content{
			Type:      model.MessageTypeLocation,
			Latitude:  c.LocationMessage.Latitude,
			Longitude: c.LocationMessage.Longitude,
		}
	case c.ReactionMessage != nil:
		return Content{Type: model.MessageTypeReaction, Text: c.ReactionMessage.Text}
	case c.ButtonsResponse != nil:
		return Content{Type: model.MessageTypeInteractive, Text: c.ButtonsResponse.SelectedDisplayText}
	case c.ListResponse != nil:
		return Content{Type: model.MessageTypeInteractive, Text: c.ListResponse.Title}
	default:
		return Content{Type: model.MessageTypeUnknown, Raw: raw}
	}
}

func mediaContent(t model.MessageType, m *bridgeMedia) Content {
	return Content{
		Type:      t,
		MediaURL:  m.URL,
		MediaMIME: m.MimeType,
		Caption:   m.Caption,
	}
}

func parseBridgeStatus(instance string, data json.RawMessage) (*StatusEvent, error) {
	var d bridgeStatusData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode bridge status: %w", err)
	}
	id := d.KeyID
	if id == "" {
		id = d.Key.ID
	}
	if id == "" {
		return nil, fmt.Errorf("bridge status without message id")
	}

	status, ok := bridgeStatusMap[strings.ToUpper(d.Status)]
	if !ok {
		// Unmapped ack levels are acknowledged but not recorded.
		return nil, nil
	}
	return &StatusEvent{
		Provider:          model.ProviderBridge,
		ProviderChannelID: instance,
		ExternalMessageID: id,
		Status:            status,
		ErrorMessage:      d.Error,
	}, nil
}

// bridgeJIDToExternalID strips the JID server suffix, leaving the bare
// phone number ("5511999999999@s.whatsapp.net" -> "5511999999999").
func bridgeJIDToExternalID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
