package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/assign"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

func TestAssignAgentActionRotatesThroughStaticDirectory(t *testing.T) {
	ctx := context.Background()
	contacts := store.NewMemoryContactStore()
	conversations := store.NewMemoryConversationStore()

	contact, _, err := contacts.UpsertByExternalID(ctx, "ch-1", "5511999999999", "Ana")
	require.NoError(t, err)

	picker := assign.NewRoundRobinPicker(assign.NewMemoryCursorStore(), "t1")
	actions := NewActions(
		contacts, conversations, picker,
		StaticAgents{"agent-1", "agent-2"},
		nil, queue.NewMemoryQueue(), 5, logger.NewNop(),
	)

	node := &model.FlowNode{Type: model.NodeAction, Action: model.ActionAssignAgent}

	var convIDs []string
	for i := 0; i < 3; i++ {
		conv := &model.Conversation{ContactID: contact.ID, ChannelID: "ch-1", Status: model.ConversationOpen}
		require.NoError(t, conversations.Create(ctx, conv))
		convIDs = append(convIDs, conv.ID)
		require.NoError(t, actions.Execute(ctx, conv.ID, contact, node, nil))
	}

	var assigned []string
	for _, id := range convIDs {
		conv, err := conversations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.ConversationPending, conv.Status)
		assigned = append(assigned, conv.AssignedAgentID)
	}
	assert.Equal(t, []string{"agent-1", "agent-2", "agent-1"}, assigned)
}

func TestAssignAgentActionFailsSoftWithoutDirectory(t *testing.T) {
	ctx := context.Background()
	contacts := store.NewMemoryContactStore()
	conversations := store.NewMemoryConversationStore()

	contact, _, err := contacts.UpsertByExternalID(ctx, "ch-1", "5511999999999", "Ana")
	require.NoError(t, err)

	picker := assign.NewRoundRobinPicker(assign.NewMemoryCursorStore(), "t1")
	actions := NewActions(contacts, conversations, picker, nil, nil, queue.NewMemoryQueue(), 5, logger.NewNop())

	node := &model.FlowNode{Type: model.NodeAction, Action: model.ActionAssignAgent}
	err = actions.Execute(ctx, "conv-1", contact, node, nil)
	assert.Error(t, err)
}
