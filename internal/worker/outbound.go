// Package worker runs the background job handlers behind the delivery
// subsystem: outbound sends, campaign pacing, the scheduled-message
// sweep and the webhook retry pipeline. Each job category gets its own
// bounded pool so one slow provider cannot starve the others.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/provider"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
	"github.com/omnidesk/omnichannel-crm/pkg/metrics"
)

// Outbound delivers persisted PENDING messages through the provider
// adapters and records the outcome. It is shared by the AI-reply,
// campaign and scheduled-message runners.
type Outbound struct {
	messages      store.MessageStore
	conversations store.ConversationStore
	contacts      store.ContactStore
	channels      store.ChannelStore
	senders       *provider.Registry
	log           *logger.Logger
}

func NewOutbound(
	messages store.MessageStore,
	conversations store.ConversationStore,
	contacts store.ContactStore,
	channels store.ChannelStore,
	senders *provider.Registry,
	log *logger.Logger,
) *Outbound {
	return &Outbound{
		messages:      messages,
		conversations: conversations,
		contacts:      contacts,
		channels:      channels,
		senders:       senders,
		log:           log,
	}
}

// HandleSendJob is the queue handler for ai_reply jobs.
func (o *Outbound) HandleSendJob(ctx context.Context, job *model.Job) error {
	var p queue.OutboundSendPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode send payload: %w", err)
	}
	return o.Deliver(ctx, &p)
}

// Deliver pushes one persisted message through its channel's provider.
// A provider failure marks the message FAILED rather than returning an
// error: conversational sends are not retried, the contact will simply
// write again.
func (o *Outbound) Deliver(ctx context.Context, p *queue.OutboundSendPayload) error {
	msg, err := o.messages.Get(ctx, p.MessageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", p.MessageID, err)
	}
	if msg.Status != model.MessageStatusPending {
		// Redelivered job for a message already pushed out.
		return nil
	}

	conv, err := o.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	contact, err := o.contacts.Get(ctx, conv.ContactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	channel, err := o.channels.Get(ctx, msg.ChannelID)
	if err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	sender, err := o.senders.ForChannel(channel)
	if err != nil {
		return err
	}

	externalID, sendErr := o.push(ctx, sender, channel, contact.ExternalID, msg, p)

	outcome := "ok"
	if sendErr != nil {
		outcome = "error"
	}
	metrics.ProviderSendsTotal.WithLabelValues(string(channel.Provider), outcome).Inc()

	if sendErr != nil {
		o.log.Warn("provider send failed",
			zap.String("message_id", msg.ID),
			zap.String("provider", string(channel.Provider)),
			zap.Error(sendErr))
		return o.messages.MarkSendResult(ctx, msg.ID, "", model.MessageStatusFailed, sendErr.Error())
	}
	return o.messages.MarkSendResult(ctx, msg.ID, externalID, model.MessageStatusSent, "")
}

func (o *Outbound) push(ctx context.Context, s provider.Sender, ch *model.Channel, to string, msg *model.Message, p *queue.OutboundSendPayload) (string, error) {
	switch {
	case msg.Type == model.MessageTypeTemplate || p.TemplateName != "":
		return s.SendTemplate(ctx, ch, to, p.TemplateName, p.Language, p.Params)
	case msg.MediaURL != "":
		return s.SendMedia(ctx, ch, to, string(msg.Type), msg.MediaURL, msg.Caption)
	default:
		return s.SendText(ctx, ch, to, msg.Content)
	}
}
