package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

func TestParseBridgeTextMessage(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"id": "BAE5F4A0", "remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false},
			"pushName": "Ana",
			"message": {"conversation": "hello there"},
			"messageTimestamp": 1710000000
		}
	}`)

	events, err := ParseBridge(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0].Message
	require.NotNil(t, ev)
	assert.Equal(t, model.ProviderBridge, ev.Provider)
	assert.Equal(t, "inst-1", ev.ProviderChannelID)
	assert.Equal(t, "BAE5F4A0", ev.ExternalMessageID)
	assert.Equal(t, "5511999999999", ev.SenderExternalID)
	assert.Equal(t, "Ana", ev.SenderName)
	assert.False(t, ev.FromMe)
	assert.Equal(t, model.MessageTypeText, ev.Content.Type)
	assert.Equal(t, "hello there", ev.Content.Text)
	assert.Equal(t, int64(1710000000), ev.Timestamp.Unix())
}

func TestParseBridgeImageMessage(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"id": "IMG1", "remoteJid": "5511999999999@s.whatsapp.net"},
			"message": {"imageMessage": {"url": "https://cdn/img.jpg", "mimetype": "image/jpeg", "caption": "look"}}
		}
	}`)

	events, err := ParseBridge(body)
	require.NoError(t, err)
	ev := events[0].Message
	require.NotNil(t, ev)
	assert.Equal(t, model.MessageTypeImage, ev.Content.Type)
	assert.Equal(t, "https://cdn/img.jpg", ev.Content.MediaURL)
	assert.Equal(t, "image/jpeg", ev.Content.MediaMIME)
	assert.Equal(t, "look", ev.Content.Caption)
}

func TestParseBridgeUnknownContentKeepsRawPayload(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"id": "POLL1", "remoteJid": "5511999999999@s.whatsapp.net"},
			"message": {"pollCreationMessage": {"name": "lunch?"}}
		}
	}`)

	events, err := ParseBridge(body)
	require.NoError(t, err)
	ev := events[0].Message
	require.NotNil(t, ev)
	assert.Equal(t, model.MessageTypeUnknown, ev.Content.Type)
	assert.Contains(t, string(ev.Content.Raw), "pollCreationMessage")
}

func TestParseBridgeStatusUpdate(t *testing.T) {
	body := []byte(`{
		"event": "messages.update",
		"instance": "inst-1",
		"data": {"keyId": "BAE5F4A0", "status": "READ"}
	}`)

	events, err := ParseBridge(body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	st := events[0].Status
	require.NotNil(t, st)
	assert.Equal(t, "BAE5F4A0", st.ExternalMessageID)
	assert.Equal(t, model.MessageStatusRead, st.Status)
}

func TestParseBridgeConnectionUpdateIsIgnored(t *testing.T) {
	body := []byte(`{"event": "connection.update", "instance": "inst-1", "data": {"state": "open"}}`)

	events, err := ParseBridge(body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Message)
	assert.Nil(t, events[0].Status)
	assert.Equal(t, "connection.update", events[0].Kind)
}

func TestParseCloudBatchedMessagesAndStatuses(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "123456"},
					"contacts": [{"wa_id": "5511999999999", "profile": {"name": "Ana"}}],
					"messages": [
						{"id": "wamid.1", "from": "5511999999999", "timestamp": "1710000000", "type": "text", "text": {"body": "hi"}},
						{"id": "wamid.2", "from": "5511999999999", "timestamp": "1710000001", "type": "interactive",
							"interactive": {"type": "button_reply", "button_reply": {"id": "b1", "title": "Yes"}}}
					],
					"statuses": [
						{"id": "wamid.0", "status": "failed", "errors": [{"code": 131047, "title": "Re-engagement required"}]}
					]
				}
			}]
		}]
	}`)

	events, err := ParseCloud(body)
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := events[0].Message
	require.NotNil(t, first)
	assert.Equal(t, model.ProviderCloud, first.Provider)
	assert.Equal(t, "123456", first.ProviderChannelID)
	assert.Equal(t, "Ana", first.SenderName)
	assert.Equal(t, model.MessageTypeText, first.Content.Type)
	assert.Equal(t, "hi", first.Content.Text)

	second := events[1].Message
	require.NotNil(t, second)
	assert.Equal(t, model.MessageTypeInteractive, second.Content.Type)
	assert.Equal(t, "Yes", second.Content.Text)

	st := events[2].Status
	require.NotNil(t, st)
	assert.Equal(t, model.MessageStatusFailed, st.Status)
	assert.Equal(t, "131047", st.ErrorCode)
	assert.Equal(t, "Re-engagement required", st.ErrorMessage)
}

func TestParseCloudMediaWithoutLinkUsesMediaID(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "123456"},
			"messages": [{"id": "wamid.3", "from": "5511999999999", "type": "image",
				"image": {"id": "media-123", "mime_type": "image/jpeg"}}]
		}}]}]
	}`)

	events, err := ParseCloud(body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "media-id:media-123", events[0].Message.Content.MediaURL)
}

func TestParseInstagramMessageAndStatuses(t *testing.T) {
	body := []byte(`{
		"object": "instagram",
		"entry": [{
			"id": "page-1",
			"messaging": [
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"}, "timestamp": 1710000000000,
					"message": {"mid": "mid.1", "text": "is this available?"}},
				{"sender": {"id": "page-1"}, "recipient": {"id": "user-9"},
					"delivery": {"mids": ["mid.a", "mid.b"]}},
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
					"read": {"mid": "mid.c"}}
			]
		}]
	}`)

	events, err := ParseInstagram(body)
	require.NoError(t, err)
	require.Len(t, events, 4)

	msg := events[0].Message
	require.NotNil(t, msg)
	assert.Equal(t, model.ProviderInstagram, msg.Provider)
	assert.Equal(t, "page-1", msg.ProviderChannelID)
	assert.Equal(t, "user-9", msg.SenderExternalID)
	assert.Equal(t, "is this available?", msg.Content.Text)

	assert.Equal(t, model.MessageStatusDelivered, events[1].Status.Status)
	assert.Equal(t, "mid.a", events[1].Status.ExternalMessageID)
	assert.Equal(t, "mid.b", events[2].Status.ExternalMessageID)
	assert.Equal(t, model.MessageStatusRead, events[3].Status.Status)
}

func TestParseInstagramEchoNamesCounterpart(t *testing.T) {
	body := []byte(`{
		"object": "instagram",
		"entry": [{"id": "page-1", "messaging": [
			{"sender": {"id": "page-1"}, "recipient": {"id": "user-9"},
				"message": {"mid": "mid.echo", "text": "thanks!", "is_echo": true}}
		]}]
	}`)

	events, err := ParseInstagram(body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	msg := events[0].Message
	require.NotNil(t, msg)
	assert.True(t, msg.FromMe)
	assert.Equal(t, "user-9", msg.SenderExternalID)
}
