package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/ai"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

type fakeAI struct {
	mu    sync.Mutex
	reply string
	calls [][]ai.ChatMessage
}

func (f *fakeAI) Chat(ctx context.Context, msgs []ai.ChatMessage, p ai.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.reply, nil
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (q *captureQueue) Enqueue(ctx context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) Consume(ctx context.Context, jobType model.JobType, concurrency int, h queue.Handler) error {
	return nil
}

func (q *captureQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type fixture struct {
	dispatcher    *Dispatcher
	conversations *store.MemoryConversationStore
	contacts      *store.MemoryContactStore
	messages      *store.MemoryMessageStore
	chatbots      *store.MemoryChatbotStore
	queue         *captureQueue
	ai            *fakeAI

	conv    *model.Conversation
	contact *model.Contact
}

func newFixture(t *testing.T, bot *model.Chatbot) *fixture {
	t.Helper()
	ctx := context.Background()

	contacts := store.NewMemoryContactStore()
	conversations := store.NewMemoryConversationStore()
	messages := store.NewMemoryMessageStore()
	channels := store.NewMemoryChannelStore()
	chatbots := store.NewMemoryChatbotStore()

	channel := &model.Channel{ID: "ch-1", TenantID: "t1", Provider: model.ProviderBridge, ProviderChannelID: "inst-1"}
	require.NoError(t, channels.Create(ctx, channel))

	contact, _, err := contacts.UpsertByExternalID(ctx, channel.ID, "5511999999999", "Ana")
	require.NoError(t, err)

	conv := &model.Conversation{ContactID: contact.ID, ChannelID: channel.ID, Status: model.ConversationOpen, AIEnabled: true}
	require.NoError(t, conversations.Create(ctx, conv))

	bot.TenantID = "t1"
	bot.Active = true
	require.NoError(t, chatbots.Create(ctx, bot))

	q := &captureQueue{}
	client := &fakeAI{reply: "AI says hi"}

	d := New(Deps{
		Conversations: conversations,
		Contacts:      contacts,
		Messages:      messages,
		Channels:      channels,
		Chatbots:      chatbots,
		AIClient:      client,
		Queue:         q,
		Logger:        logger.NewNop(),
	})

	return &fixture{
		dispatcher:    d,
		conversations: conversations,
		contacts:      contacts,
		messages:      messages,
		chatbots:      chatbots,
		queue:         q,
		ai:            client,
		conv:          conv,
		contact:       contact,
	}
}

func (f *fixture) inbound(text string) *model.Message {
	return &model.Message{
		ID:             "in-" + text,
		ConversationID: f.conv.ID,
		ChannelID:      f.conv.ChannelID,
		ExternalID:     "ext-" + text,
		Direction:      model.DirectionInbound,
		Type:           model.MessageTypeText,
		Content:        text,
		Status:         model.MessageStatusDelivered,
	}
}

func simpleFlow() *model.FlowGraph {
	return &model.FlowGraph{
		Nodes: []model.FlowNode{
			{ID: "start", Type: model.NodeStart},
			{ID: "ask", Type: model.NodeQuestion, Text: "Need help with what?", Variable: "topic"},
		},
		Edges: []model.FlowEdge{{From: "start", To: "ask"}},
	}
}

func TestHybridTriggerKeywordStartsFlowNotAI(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode:            model.ModeHybrid,
		TriggerKeywords: []string{"help"},
		Flow:            simpleFlow(),
	})

	err := f.dispatcher.HandleInbound(context.Background(), f.inbound("I need HELP please"))
	require.NoError(t, err)

	assert.Equal(t, 0, f.ai.callCount())
	assert.Equal(t, 1, f.queue.count())

	conv, err := f.conversations.Get(context.Background(), f.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.FlowState)
	assert.True(t, conv.FlowState.WaitingForInput)
}

func TestHybridWithoutTriggerFallsBackToAI(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode:            model.ModeHybrid,
		TriggerKeywords: []string{"help"},
		Flow:            simpleFlow(),
	})

	err := f.dispatcher.HandleInbound(context.Background(), f.inbound("good morning"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.ai.callCount())
	assert.Equal(t, 1, f.queue.count())
}

func TestHybridInProgressFlowConsumesReplyEvenWithoutKeyword(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode:            model.ModeHybrid,
		TriggerKeywords: []string{"help"},
		Flow:            simpleFlow(),
	})
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("help")))
	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("billing")))

	assert.Equal(t, 0, f.ai.callCount())

	conv, err := f.conversations.Get(ctx, f.conv.ID)
	require.NoError(t, err)
	// Free-text question answered; the flow ended and the cursor is gone.
	assert.Nil(t, conv.FlowState)
}

func TestHandoffKeywordDisablesAutomation(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode:            model.ModeAI,
		HandoffKeywords: []string{"agent"},
		HandoffMessage:  "Connecting you to a human.",
	})
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("I want an AGENT now")))

	assert.Equal(t, 0, f.ai.callCount())
	assert.Equal(t, 1, f.queue.count())

	conv, err := f.conversations.Get(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.False(t, conv.AIEnabled)

	// Further inbound messages are ignored entirely.
	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("hello?")))
	assert.Equal(t, 0, f.ai.callCount())
	assert.Equal(t, 1, f.queue.count())
}

func TestDisabledConversationIsIgnored(t *testing.T) {
	f := newFixture(t, &model.Chatbot{Mode: model.ModeAI})
	ctx := context.Background()

	require.NoError(t, f.conversations.SetAIEnabled(ctx, f.conv.ID, false))
	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("anyone there?")))

	assert.Equal(t, 0, f.ai.callCount())
	assert.Equal(t, 0, f.queue.count())
}

func TestOutOfHoursSendsAutoReplyInsteadOfAI(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode: model.ModeAI,
		BusinessHours: &model.BusinessHours{
			Enabled:           true,
			Open:              "09:00",
			Close:             "18:00",
			Days:              []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Timezone:          "UTC",
			OutOfHoursMessage: "We are closed, back Monday 9am.",
		},
	})
	// Sunday 23:00 UTC.
	f.dispatcher.deps.Now = func() time.Time {
		return time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("hello")))

	assert.Equal(t, 0, f.ai.callCount())
	require.Equal(t, 1, f.queue.count())

	history, err := f.messages.ListRecent(ctx, f.conv.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "We are closed, back Monday 9am.", history[len(history)-1].Content)
}

func TestAIContextCarriesPersonaAndHistory(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode:    model.ModeAI,
		Persona: "You are Omni, a friendly retail assistant.",
	})
	ctx := context.Background()

	in := f.inbound("what are your prices?")
	require.NoError(t, f.messages.CreateIfAbsent(ctx, in))
	require.NoError(t, f.dispatcher.HandleInbound(ctx, in))

	require.Equal(t, 1, f.ai.callCount())
	msgs := f.ai.calls[0]
	require.NotEmpty(t, msgs)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Omni, a friendly retail assistant")
	assert.Contains(t, msgs[0].Content, "Ana")

	last := msgs[len(msgs)-1]
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.Equal(t, "what are your prices?", last.Content)
}

func TestFlowModeCompletionClearsState(t *testing.T) {
	f := newFixture(t, &model.Chatbot{
		Mode: model.ModeFlow,
		Flow: &model.FlowGraph{
			Nodes: []model.FlowNode{
				{ID: "start", Type: model.NodeStart},
				{ID: "msg", Type: model.NodeMessage, Text: "Welcome {{name}}!"},
			},
			Edges: []model.FlowEdge{{From: "start", To: "msg"}},
		},
	})
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleInbound(ctx, f.inbound("hi")))

	conv, err := f.conversations.Get(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Nil(t, conv.FlowState)

	history, err := f.messages.ListRecent(ctx, f.conv.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "Welcome Ana!", history[len(history)-1].Content)
}
