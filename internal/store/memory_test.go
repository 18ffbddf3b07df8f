package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

func TestContactUpsertIsUniquePerChannelAndExternalID(t *testing.T) {
	s := NewMemoryContactStore()
	ctx := context.Background()

	first, created, err := s.UpsertByExternalID(ctx, "ch-1", "5511999999999", "Ana")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StageNew, first.Stage)

	again, created, err := s.UpsertByExternalID(ctx, "ch-1", "5511999999999", "Ana Maria")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	// Existing name is never overwritten.
	assert.Equal(t, "Ana", again.Name)

	// Same external id on another channel is a distinct contact.
	other, created, err := s.UpsertByExternalID(ctx, "ch-2", "5511999999999", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestContactUpsertFillsMissingName(t *testing.T) {
	s := NewMemoryContactStore()
	ctx := context.Background()

	_, _, err := s.UpsertByExternalID(ctx, "ch-1", "x-1", "")
	require.NoError(t, err)

	c, _, err := s.UpsertByExternalID(ctx, "ch-1", "x-1", "Late Name")
	require.NoError(t, err)
	assert.Equal(t, "Late Name", c.Name)
}

func TestConversationFindActiveIgnoresClosed(t *testing.T) {
	s := NewMemoryConversationStore()
	ctx := context.Background()

	closed := &model.Conversation{ContactID: "c1", ChannelID: "ch-1", Status: model.ConversationClosed}
	require.NoError(t, s.Create(ctx, closed))

	_, err := s.FindActive(ctx, "c1", "ch-1")
	assert.ErrorIs(t, err, ErrNotFound)

	open := &model.Conversation{ContactID: "c1", ChannelID: "ch-1", Status: model.ConversationOpen}
	require.NoError(t, s.Create(ctx, open))

	found, err := s.FindActive(ctx, "c1", "ch-1")
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)
}

func TestFindOrCreateActiveCreatesAtMostOneConversation(t *testing.T) {
	s := NewMemoryConversationStore()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	created := make(chan bool, workers)
	ids := make(chan string, workers)

	// Concurrent first-inbound events for the same (contact, channel)
	// pair must converge on a single conversation.
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, was, err := s.FindOrCreateActive(ctx, &model.Conversation{
				ContactID: "c1",
				ChannelID: "ch-1",
				Status:    model.ConversationOpen,
				AIEnabled: true,
			})
			assert.NoError(t, err)
			created <- was
			ids <- conv.ID
		}()
	}
	wg.Wait()
	close(created)
	close(ids)

	n := 0
	for was := range created {
		if was {
			n++
		}
	}
	assert.Equal(t, 1, n)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func TestFindOrCreateActiveReusesExistingOpenConversation(t *testing.T) {
	s := NewMemoryConversationStore()
	ctx := context.Background()

	first, created, err := s.FindOrCreateActive(ctx, &model.Conversation{
		ContactID: "c1", ChannelID: "ch-1", Status: model.ConversationOpen, AIEnabled: true,
	})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.FindOrCreateActive(ctx, &model.Conversation{
		ContactID: "c1", ChannelID: "ch-1", Status: model.ConversationOpen, AIEnabled: true,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// A closed conversation does not block a new one.
	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	got.Status = model.ConversationClosed
	require.NoError(t, s.Update(ctx, got))

	fresh, created, err := s.FindOrCreateActive(ctx, &model.Conversation{
		ContactID: "c1", ChannelID: "ch-1", Status: model.ConversationOpen, AIEnabled: true,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestSetAIEnabledFalseClearsFlowState(t *testing.T) {
	s := NewMemoryConversationStore()
	ctx := context.Background()

	conv := &model.Conversation{ContactID: "c1", ChannelID: "ch-1", Status: model.ConversationOpen, AIEnabled: true}
	require.NoError(t, s.Create(ctx, conv))

	node := "ask"
	require.NoError(t, s.ReplaceFlowState(ctx, conv.ID, &model.FlowState{
		Version:       model.FlowStateVersion,
		CurrentNodeID: &node,
		Started:       true,
	}))

	require.NoError(t, s.SetAIEnabled(ctx, conv.ID, false))

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.AIEnabled)
	assert.Nil(t, got.FlowState)
}

func TestMessageCreateIfAbsentRejectsDuplicateExternalID(t *testing.T) {
	s := NewMemoryMessageStore()
	ctx := context.Background()

	msg := &model.Message{ConversationID: "conv-1", ExternalID: "ext-1", Type: model.MessageTypeText, Content: "hi"}
	require.NoError(t, s.CreateIfAbsent(ctx, msg))

	dup := &model.Message{ConversationID: "conv-1", ExternalID: "ext-1", Type: model.MessageTypeText, Content: "hi again"}
	assert.ErrorIs(t, s.CreateIfAbsent(ctx, dup), ErrDuplicate)

	history, err := s.ListRecent(ctx, "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
}

func TestMessageListRecentReturnsNewestLastBounded(t *testing.T) {
	s := NewMemoryMessageStore()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.CreateIfAbsent(ctx, &model.Message{
			ConversationID: "conv-1",
			ExternalID:     "ext-" + text,
			Type:           model.MessageTypeText,
			Content:        text,
		}))
	}

	history, err := s.ListRecent(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Content)
	assert.Equal(t, "three", history[1].Content)
}

func TestChatbotResolveForTenantPrefersDefaultFlag(t *testing.T) {
	s := NewMemoryChatbotStore()
	ctx := context.Background()

	older := &model.Chatbot{TenantID: "t1", Name: "first", Active: true, CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, s.Create(ctx, older))

	def := &model.Chatbot{TenantID: "t1", Name: "default", Active: true, Default: true}
	require.NoError(t, s.Create(ctx, def))

	got, err := s.ResolveForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)
}

func TestChatbotResolveForTenantFallsBackToOldestActive(t *testing.T) {
	s := NewMemoryChatbotStore()
	ctx := context.Background()

	inactive := &model.Chatbot{TenantID: "t1", Name: "retired", Default: true, Active: false}
	require.NoError(t, s.Create(ctx, inactive))

	older := &model.Chatbot{TenantID: "t1", Name: "older", Active: true, CreatedAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, s.Create(ctx, older))

	newer := &model.Chatbot{TenantID: "t1", Name: "newer", Active: true, CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, s.Create(ctx, newer))

	got, err := s.ResolveForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = s.ResolveForTenant(ctx, "t2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeadLetterPurgeBefore(t *testing.T) {
	s := NewMemoryDeadLetterStore()
	ctx := context.Background()

	old := &model.DeadLetter{Job: model.Job{ID: "j1"}, LastError: "boom", FailedAt: time.Now().Add(-8 * 24 * time.Hour)}
	require.NoError(t, s.Add(ctx, old))

	fresh := &model.DeadLetter{Job: model.Job{ID: "j2"}, LastError: "boom", FailedAt: time.Now()}
	require.NoError(t, s.Add(ctx, fresh))

	n, err := s.PurgeBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	letters, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "j2", letters[0].Job.ID)
}
