package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
	"github.com/omnidesk/omnichannel-crm/pkg/metrics"
)

// Responder receives persisted inbound messages for automated reply.
// It is invoked on a detached goroutine so webhook acknowledgment never
// waits on flow or AI work.
type Responder interface {
	HandleInbound(ctx context.Context, msg *model.Message) error
}

// Processor applies normalized events to the canonical stores: channel
// resolution, message de-duplication, contact and conversation upsert,
// and handing inbound text to the responder.
type Processor struct {
	channels      store.ChannelStore
	contacts      store.ContactStore
	conversations store.ConversationStore
	messages      store.MessageStore
	responder     Responder
	log           *logger.Logger

	now func() time.Time
}

func NewProcessor(
	channels store.ChannelStore,
	contacts store.ContactStore,
	conversations store.ConversationStore,
	messages store.MessageStore,
	responder Responder,
	log *logger.Logger,
) *Processor {
	return &Processor{
		channels:      channels,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		responder:     responder,
		log:           log,
		now:           time.Now,
	}
}

// Process applies a batch of events. A failing event is logged and
// skipped; the rest of the batch still runs, since providers treat any
// non-2xx as a signal to re-deliver the whole batch.
func (p *Processor) Process(ctx context.Context, events []Event) {
	for i := range events {
		ev := &events[i]
		switch {
		case ev.Message != nil:
			metrics.WebhookEventsTotal.WithLabelValues(string(ev.Message.Provider), "message").Inc()
			if err := p.handleMessage(ctx, ev.Message); err != nil {
				p.log.Error("webhook message event failed",
					zap.String("provider", string(ev.Message.Provider)),
					zap.String("external_id", ev.Message.ExternalMessageID),
					zap.Error(err))
			}
		case ev.Status != nil:
			metrics.WebhookEventsTotal.WithLabelValues(string(ev.Status.Provider), "status").Inc()
			if err := p.handleStatus(ctx, ev.Status); err != nil {
				p.log.Error("webhook status event failed",
					zap.String("provider", string(ev.Status.Provider)),
					zap.String("external_id", ev.Status.ExternalMessageID),
					zap.Error(err))
			}
		default:
			p.log.Debug("ignoring webhook event", zap.String("kind", ev.Kind))
		}
	}
}

func (p *Processor) handleMessage(ctx context.Context, ev *MessageEvent) error {
	channel, err := p.channels.GetByProviderChannelID(ctx, ev.Provider, ev.ProviderChannelID)
	if errors.Is(err, store.ErrNotFound) {
		p.log.Warn("webhook for unknown channel",
			zap.String("provider", string(ev.Provider)),
			zap.String("provider_channel_id", ev.ProviderChannelID))
		return nil
	}
	if err != nil {
		return err
	}

	// Replays are common: providers redeliver on timeout, and the
	// bridge echoes our own sends back. The external id decides.
	if _, err := p.messages.GetByExternalID(ctx, ev.ExternalMessageID); err == nil {
		metrics.DuplicateMessagesTotal.WithLabelValues(string(ev.Provider)).Inc()
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	contact, _, err := p.contacts.UpsertByExternalID(ctx, channel.ID, ev.SenderExternalID, ev.SenderName)
	if err != nil {
		return err
	}

	conv, _, err := p.conversations.FindOrCreateActive(ctx, &model.Conversation{
		ContactID: contact.ID,
		ChannelID: channel.ID,
		Status:    model.ConversationOpen,
		AIEnabled: true,
	})
	if err != nil {
		return err
	}

	direction := model.DirectionInbound
	if ev.FromMe {
		direction = model.DirectionOutbound
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}
	msg := &model.Message{
		ID:             newMessageID(),
		ConversationID: conv.ID,
		ChannelID:      channel.ID,
		ExternalID:     ev.ExternalMessageID,
		Direction:      direction,
		Type:           ev.Content.Type,
		Content:        ev.Content.Text,
		MediaURL:       ev.Content.MediaURL,
		MediaMIME:      ev.Content.MediaMIME,
		Caption:        ev.Content.Caption,
		Latitude:       ev.Content.Latitude,
		Longitude:      ev.Content.Longitude,
		RawPayload:     ev.Content.Raw,
		FromMe:         ev.FromMe,
		Status:         model.MessageStatusDelivered,
		CreatedAt:      ts,
	}
	if err := p.messages.CreateIfAbsent(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.DuplicateMessagesTotal.WithLabelValues(string(ev.Provider)).Inc()
			return nil
		}
		return err
	}
	metrics.MessagesTotal.WithLabelValues(string(ev.Provider), string(direction)).Inc()

	conv.LastMessageAt = &ts
	conv.LastMessageText = msg.Preview()
	if direction == model.DirectionInbound && !ev.FromMe {
		conv.UnreadCount++
	}
	if err := p.conversations.Update(ctx, conv); err != nil {
		return err
	}

	if p.responder != nil && direction == model.DirectionInbound && !ev.FromMe && automatable(msg.Type) {
		detached := context.WithoutCancel(ctx)
		go func() {
			if err := p.responder.HandleInbound(detached, msg); err != nil {
				p.log.Error("inbound dispatch failed",
					zap.String("conversation_id", conv.ID),
					zap.Error(err))
			}
		}()
	}
	return nil
}

// handleStatus applies a delivery status update. A status for a message
// we never stored is a no-op: the bridge reports acks for messages sent
// from the phone's other sessions too.
func (p *Processor) handleStatus(ctx context.Context, ev *StatusEvent) error {
	msg, err := p.messages.GetByExternalID(ctx, ev.ExternalMessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if ev.Status == model.MessageStatusFailed && ev.ErrorMessage != "" {
		p.log.Warn("provider reported send failure",
			zap.String("message_id", msg.ID),
			zap.String("code", ev.ErrorCode),
			zap.String("error", ev.ErrorMessage))
	}
	return p.messages.UpdateStatus(ctx, ev.ExternalMessageID, ev.Status, ev.ErrorCode, ev.ErrorMessage)
}

func newMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// automatable reports whether a content type can drive automation.
// Plain text and interactive button/list replies carry a textual
// answer; media, reactions and locations are recorded but never
// answered.
func automatable(t model.MessageType) bool {
	return t == model.MessageTypeText || t == model.MessageTypeInteractive
}
