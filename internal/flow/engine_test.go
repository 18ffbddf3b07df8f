package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/ai"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

func newTestEngine(actions ActionExecutor) *Engine {
	return NewEngine(nil, actions, ai.Params{}, logger.NewNop())
}

func strPtr(s string) *string { return &s }

func greetingFlow() *model.FlowGraph {
	return &model.FlowGraph{
		Nodes: []model.FlowNode{
			{ID: "start", Type: model.NodeStart},
			{ID: "hello", Type: model.NodeMessage, Text: "Hi {{name}}!"},
			{ID: "ask", Type: model.NodeQuestion, Text: "Interested?",
				Input: model.InputButton, Options: []string{"Yes", "No"}, Variable: "interested"},
			{ID: "cond", Type: model.NodeCondition,
				CondVariable: "interested", CondOp: model.OpEquals, CondValue: "yes"},
			{ID: "yay", Type: model.NodeMessage, Text: "Great!"},
			{ID: "bye", Type: model.NodeMessage, Text: "No problem."},
		},
		Edges: []model.FlowEdge{
			{From: "start", To: "hello"},
			{From: "hello", To: "ask"},
			{From: "ask", To: "cond"},
			{From: "cond", To: "yay", Label: "true"},
			{From: "cond", To: "bye", Label: "false"},
		},
	}
}

func TestRunWalksToFirstQuestionAndWaits(t *testing.T) {
	e := newTestEngine(nil)
	contact := &model.Contact{Name: "Ana"}

	res, err := e.Run(context.Background(), greetingFlow(), nil, contact, "conv-1", "hi")
	require.NoError(t, err)

	require.Len(t, res.Texts, 2)
	assert.Equal(t, "Hi Ana!", res.Texts[0])
	assert.Contains(t, res.Texts[1], "Interested?")
	assert.Contains(t, res.Texts[1], "1. Yes")
	assert.Contains(t, res.Texts[1], "2. No")

	assert.True(t, res.State.WaitingForInput)
	require.NotNil(t, res.State.CurrentNodeID)
	assert.Equal(t, "ask", *res.State.CurrentNodeID)
	assert.False(t, res.Completed)
}

func TestRunAcceptsOptionCaseInsensitively(t *testing.T) {
	e := newTestEngine(nil)
	st := &model.FlowState{
		Version:         model.FlowStateVersion,
		CurrentNodeID:   strPtr("ask"),
		Vars:            map[string]string{},
		WaitingForInput: true,
		ExpectedInput:   model.InputButton,
		Options:         []string{"Yes", "No"},
		Started:         true,
	}

	res, err := e.Run(context.Background(), greetingFlow(), st, &model.Contact{}, "conv-1", "  yes ")
	require.NoError(t, err)

	// The canonical option is stored, not the raw reply.
	assert.Equal(t, "Yes", res.State.Vars["interested"])
	require.Len(t, res.Texts, 1)
	assert.Equal(t, "Great!", res.Texts[0])
	assert.True(t, res.Completed)
	assert.Nil(t, res.State.CurrentNodeID)
}

func TestRunAcceptsNumericOptionPosition(t *testing.T) {
	e := newTestEngine(nil)
	st := &model.FlowState{
		Version:         model.FlowStateVersion,
		CurrentNodeID:   strPtr("ask"),
		Vars:            map[string]string{},
		WaitingForInput: true,
		ExpectedInput:   model.InputButton,
		Options:         []string{"Yes", "No"},
		Started:         true,
	}

	res, err := e.Run(context.Background(), greetingFlow(), st, &model.Contact{}, "conv-1", "2")
	require.NoError(t, err)

	assert.Equal(t, "No", res.State.Vars["interested"])
	require.Len(t, res.Texts, 1)
	assert.Equal(t, "No problem.", res.Texts[0])
}

func TestRunRepromptsOnInvalidConstrainedReply(t *testing.T) {
	e := newTestEngine(nil)
	st := &model.FlowState{
		Version:         model.FlowStateVersion,
		CurrentNodeID:   strPtr("ask"),
		Vars:            map[string]string{},
		WaitingForInput: true,
		ExpectedInput:   model.InputButton,
		Options:         []string{"Yes", "No"},
		Started:         true,
	}

	res, err := e.Run(context.Background(), greetingFlow(), st, &model.Contact{}, "conv-1", "Maybe")
	require.NoError(t, err)

	require.Len(t, res.Texts, 1)
	assert.Contains(t, res.Texts[0], "Interested?")
	assert.True(t, res.State.WaitingForInput)
	assert.Equal(t, "ask", *res.State.CurrentNodeID)
	assert.Empty(t, res.State.Vars["interested"])
	assert.False(t, res.Completed)
}

func TestRunTerminatesCyclicGraphAtIterationCap(t *testing.T) {
	graph := &model.FlowGraph{
		Nodes: []model.FlowNode{
			{ID: "start", Type: model.NodeStart},
			{ID: "a", Type: model.NodeMessage, Text: "ping"},
			{ID: "b", Type: model.NodeMessage, Text: "pong"},
		},
		Edges: []model.FlowEdge{
			{From: "start", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}
	e := newTestEngine(nil)

	res, err := e.Run(context.Background(), graph, nil, &model.Contact{}, "conv-1", "")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Nil(t, res.State.CurrentNodeID)
	assert.LessOrEqual(t, len(res.Texts), MaxIterations)
}

func TestRunHandoffStopsImmediately(t *testing.T) {
	graph := &model.FlowGraph{
		Nodes: []model.FlowNode{
			{ID: "start", Type: model.NodeStart},
			{ID: "ho", Type: model.NodeAction, Action: model.ActionHandoff},
			{ID: "after", Type: model.NodeMessage, Text: "never sent"},
		},
		Edges: []model.FlowEdge{
			{From: "start", To: "ho"},
			{From: "ho", To: "after"},
		},
	}
	e := newTestEngine(nil)

	res, err := e.Run(context.Background(), graph, nil, &model.Contact{}, "conv-1", "")
	require.NoError(t, err)

	assert.True(t, res.Handoff)
	assert.Empty(t, res.Texts)
	assert.Nil(t, res.State.CurrentNodeID)
}

func TestRunAINodeFallsBackWithoutClient(t *testing.T) {
	graph := &model.FlowGraph{
		Nodes: []model.FlowNode{
			{ID: "start", Type: model.NodeStart},
			{ID: "ai", Type: model.NodeAI, Text: "Summarize", Fallback: "An agent will reply soon."},
		},
		Edges: []model.FlowEdge{
			{From: "start", To: "ai"},
		},
	}
	e := newTestEngine(nil)

	res, err := e.Run(context.Background(), graph, nil, &model.Contact{}, "conv-1", "")
	require.NoError(t, err)

	require.Len(t, res.Texts, 1)
	assert.Equal(t, "An agent will reply soon.", res.Texts[0])
	assert.True(t, res.Completed)
}

func TestRunAlreadyCompletedIsNoOp(t *testing.T) {
	e := newTestEngine(nil)
	st := &model.FlowState{Version: model.FlowStateVersion, Vars: map[string]string{}, Started: true}

	res, err := e.Run(context.Background(), greetingFlow(), st, &model.Contact{}, "conv-1", "hello again")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Empty(t, res.Texts)
}

func TestRunDoesNotMutateInputState(t *testing.T) {
	e := newTestEngine(nil)
	st := &model.FlowState{
		Version:         model.FlowStateVersion,
		CurrentNodeID:   strPtr("ask"),
		Vars:            map[string]string{"seed": "v"},
		WaitingForInput: true,
		ExpectedInput:   model.InputButton,
		Options:         []string{"Yes", "No"},
		Started:         true,
	}

	_, err := e.Run(context.Background(), greetingFlow(), st, &model.Contact{}, "conv-1", "yes")
	require.NoError(t, err)

	assert.True(t, st.WaitingForInput)
	assert.Equal(t, "ask", *st.CurrentNodeID)
	assert.NotContains(t, st.Vars, "interested")
}
