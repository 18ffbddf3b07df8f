// Package dispatch decides how an inbound message is answered: by the
// scripted flow interpreter, by the AI collaborator, or not at all.
// All collaborator failures are absorbed here; the inbound message is
// already durably recorded before dispatch runs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/ai"
	"github.com/omnidesk/omnichannel-crm/internal/flow"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

// Deps are the collaborators a Dispatcher needs.
type Deps struct {
	Conversations store.ConversationStore
	Contacts      store.ContactStore
	Messages      store.MessageStore
	Channels      store.ChannelStore
	Chatbots      store.ChatbotStore

	AIClient ai.Client
	Actions  flow.ActionExecutor
	Queue    queue.Queue
	Logger   *logger.Logger

	// AITimeout bounds each AI collaborator call.
	AITimeout time.Duration

	// Now is injectable for business-hours tests; defaults to time.Now.
	Now func() time.Time
}

// Dispatcher routes inbound text messages to the configured strategy.
type Dispatcher struct {
	deps  Deps
	locks *conversationLocks
}

// New creates a dispatcher.
func New(deps Deps) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.AITimeout == 0 {
		deps.AITimeout = 30 * time.Second
	}
	return &Dispatcher{deps: deps, locks: newConversationLocks()}
}

// HandleInbound processes one inbound text message. Flow execution for
// a conversation is serialized: concurrent turns on the same
// conversation queue up behind the per-conversation lock.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg *model.Message) error {
	unlock := d.locks.Lock(msg.ConversationID)
	defer unlock()

	conv, err := d.deps.Conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if !conv.AIEnabled {
		return nil
	}

	bot, err := d.resolveChatbot(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve chatbot: %w", err)
	}

	contact, err := d.deps.Contacts.Get(ctx, conv.ContactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}

	switch bot.Mode {
	case model.ModeFlow:
		return d.runFlow(ctx, conv, contact, bot, msg.Content)

	case model.ModeHybrid:
		if conv.FlowState.InProgress() {
			return d.runFlow(ctx, conv, contact, bot, msg.Content)
		}
		if matchKeyword(bot.TriggerKeywords, msg.Content) {
			return d.runFlow(ctx, conv, contact, bot, msg.Content)
		}
		return d.runAI(ctx, conv, contact, bot, msg.Content)

	case model.ModeAI:
		return d.runAI(ctx, conv, contact, bot, msg.Content)
	}

	d.deps.Logger.Warn("unknown chatbot mode",
		zap.String("chatbot_id", bot.ID),
		zap.String("mode", string(bot.Mode)),
	)
	return nil
}

// resolveChatbot returns the conversation's pinned chatbot when set,
// otherwise the tenant's default active one.
func (d *Dispatcher) resolveChatbot(ctx context.Context, conv *model.Conversation) (*model.Chatbot, error) {
	if conv.ChatbotID != "" {
		bot, err := d.deps.Chatbots.Get(ctx, conv.ChatbotID)
		if err == nil && bot.Active {
			return bot, nil
		}
		// Fall through to tenant resolution on a stale override.
	}
	ch, err := d.deps.Channels.Get(ctx, conv.ChannelID)
	if err != nil {
		return nil, err
	}
	return d.deps.Chatbots.ResolveForTenant(ctx, ch.TenantID)
}

func (d *Dispatcher) runFlow(ctx context.Context, conv *model.Conversation, contact *model.Contact, bot *model.Chatbot, input string) error {
	if bot.Flow == nil {
		d.deps.Logger.Warn("chatbot has no flow configured", zap.String("chatbot_id", bot.ID))
		return nil
	}

	engine := flow.NewEngine(d.deps.AIClient, d.deps.Actions, d.aiParams(bot), d.deps.Logger)
	res, err := engine.Run(ctx, bot.Flow, conv.FlowState, contact, conv.ID, input)
	if err != nil {
		d.deps.Logger.Error("flow run failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil
	}

	switch {
	case res.Handoff:
		if err := d.deps.Conversations.SetAIEnabled(ctx, conv.ID, false); err != nil {
			d.deps.Logger.Error("failed to disable automation", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
		if bot.HandoffMessage != "" {
			res.Texts = append(res.Texts, bot.HandoffMessage)
		}
	case res.Completed:
		// A finished flow leaves no cursor behind.
		if err := d.deps.Conversations.ReplaceFlowState(ctx, conv.ID, nil); err != nil {
			d.deps.Logger.Error("failed to clear flow state", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	default:
		if err := d.deps.Conversations.ReplaceFlowState(ctx, conv.ID, res.State); err != nil {
			d.deps.Logger.Error("failed to persist flow state", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	for _, text := range res.Texts {
		d.send(ctx, conv, d.textMessage(conv, text), nil)
	}
	for _, m := range res.Media {
		msg := d.textMessage(conv, "")
		msg.Type = mediaMessageType(m.Type)
		msg.MediaURL = m.URL
		msg.Caption = m.Caption
		d.send(ctx, conv, msg, nil)
	}
	for _, t := range res.Templates {
		msg := d.textMessage(conv, "")
		msg.Type = model.MessageTypeTemplate
		msg.Content = t.Name
		d.send(ctx, conv, msg, &queue.OutboundSendPayload{
			TemplateName: t.Name,
			Language:     t.Language,
			Params:       t.Params,
		})
	}
	return nil
}

func (d *Dispatcher) runAI(ctx context.Context, conv *model.Conversation, contact *model.Contact, bot *model.Chatbot, input string) error {
	// Handoff keywords disable automation before anything else.
	if matchKeyword(bot.HandoffKeywords, input) {
		if err := d.deps.Conversations.SetAIEnabled(ctx, conv.ID, false); err != nil {
			d.deps.Logger.Error("failed to disable automation", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
		if bot.HandoffMessage != "" {
			d.send(ctx, conv, d.textMessage(conv, bot.HandoffMessage), nil)
		}
		return nil
	}

	if !withinBusinessHours(bot.BusinessHours, d.deps.Now()) {
		if bot.BusinessHours.OutOfHoursMessage != "" {
			d.send(ctx, conv, d.textMessage(conv, bot.BusinessHours.OutOfHoursMessage), nil)
		}
		return nil
	}

	if d.deps.AIClient == nil {
		d.deps.Logger.Warn("no AI client configured", zap.String("conversation_id", conv.ID))
		return nil
	}

	messages := d.buildContext(ctx, conv, contact, bot)
	reply, err := d.deps.AIClient.Chat(ctx, messages, d.aiParams(bot))
	if err != nil {
		d.deps.Logger.Error("ai completion failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil
	}

	d.send(ctx, conv, d.textMessage(conv, reply), nil)
	return nil
}

// buildContext assembles the system prompt plus the last turns of
// history. The inbound message is already persisted, so it arrives as
// the final user turn.
func (d *Dispatcher) buildContext(ctx context.Context, conv *model.Conversation, contact *model.Contact, bot *model.Chatbot) []ai.ChatMessage {
	var system strings.Builder
	if bot.Persona != "" {
		system.WriteString(bot.Persona)
	} else {
		system.WriteString("You are a helpful customer support assistant.")
	}
	if contact.Name != "" {
		fmt.Fprintf(&system, "\n\nYou are talking to %s.", contact.Name)
	}
	if bot.KnowledgeBase != "" {
		fmt.Fprintf(&system, "\n\nUse the following knowledge when relevant:\n%s", bot.KnowledgeBase)
	}

	out := []ai.ChatMessage{{Role: ai.RoleSystem, Content: system.String()}}

	limit := bot.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	history, err := d.deps.Messages.ListRecent(ctx, conv.ID, limit)
	if err != nil {
		d.deps.Logger.Warn("failed to load history", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	for _, m := range history {
		if m.Type != model.MessageTypeText || m.Content == "" {
			continue
		}
		role := ai.RoleUser
		if m.Direction == model.DirectionOutbound {
			role = ai.RoleAssistant
		}
		out = append(out, ai.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}

func (d *Dispatcher) aiParams(bot *model.Chatbot) ai.Params {
	return ai.Params{
		Model:       bot.AIModel,
		Temperature: bot.Temperature,
		MaxTokens:   bot.MaxTokens,
		Timeout:     d.deps.AITimeout,
	}
}

func (d *Dispatcher) textMessage(conv *model.Conversation, text string) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		ChannelID:      conv.ChannelID,
		Direction:      model.DirectionOutbound,
		Type:           model.MessageTypeText,
		Content:        text,
		Status:         model.MessageStatusPending,
		AIGenerated:    true,
		CreatedAt:      d.deps.Now(),
	}
}

// send persists an outbound message, refreshes the conversation
// preview and queues the delivery job. Failures are logged; the
// inbound message stays correctly recorded regardless.
func (d *Dispatcher) send(ctx context.Context, conv *model.Conversation, msg *model.Message, payload *queue.OutboundSendPayload) {
	if err := d.deps.Messages.CreateIfAbsent(ctx, msg); err != nil {
		d.deps.Logger.Error("failed to persist outbound message",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return
	}

	if fresh, err := d.deps.Conversations.Get(ctx, conv.ID); err == nil {
		fresh.LastMessageText = msg.Preview()
		t := msg.CreatedAt
		fresh.LastMessageAt = &t
		if err := d.deps.Conversations.Update(ctx, fresh); err != nil {
			d.deps.Logger.Warn("failed to update conversation preview", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	if payload == nil {
		payload = &queue.OutboundSendPayload{}
	}
	payload.MessageID = msg.ID
	job, err := queue.NewJob(model.JobAIReply, payload)
	if err != nil {
		d.deps.Logger.Error("failed to build delivery job", zap.Error(err))
		return
	}
	if err := d.deps.Queue.Enqueue(ctx, job); err != nil {
		d.deps.Logger.Error("failed to enqueue delivery job",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func matchKeyword(keywords []string, text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func mediaMessageType(mediaType string) model.MessageType {
	switch strings.ToLower(mediaType) {
	case "image":
		return model.MessageTypeImage
	case "video":
		return model.MessageTypeVideo
	case "audio":
		return model.MessageTypeAudio
	case "document":
		return model.MessageTypeDocument
	default:
		return model.MessageTypeDocument
	}
}
