// Package flow implements the state-machine interpreter that drives
// scripted multi-turn conversations over an immutable flow graph. One
// inbound turn triggers at most one Run; the engine either finishes a
// bounded number of node visits synchronously or persists a waiting
// state and returns. It never blocks across invocations.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/ai"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
	"github.com/omnidesk/omnichannel-crm/pkg/metrics"
)

// MaxIterations bounds node visits per run so a malformed (cyclic)
// graph terminates. Reaching the cap force-completes the flow.
const MaxIterations = 50

// ActionExecutor performs the side effects of action nodes against
// external collaborators. Side effects are best-effort: an error is
// logged and the flow still advances.
type ActionExecutor interface {
	Execute(ctx context.Context, conversationID string, contact *model.Contact, node *model.FlowNode, vars map[string]string) error
}

// MediaOutput is a structured outbound media instruction.
type MediaOutput struct {
	URL     string
	Type    string
	Caption string
}

// TemplateOutput is a structured outbound template instruction.
type TemplateOutput struct {
	Name     string
	Language string
	Params   map[string]string
}

// Result carries everything one run produced. The caller persists
// State as a whole-object replace and queues the outputs for delivery.
type Result struct {
	Texts     []string
	Media     []MediaOutput
	Templates []TemplateOutput

	State *model.FlowState

	// Handoff is set when a handoff action ran: automation must be
	// disabled for the conversation.
	Handoff bool

	// Completed is set when the flow reached a node without outgoing
	// edges or hit the iteration cap.
	Completed bool
}

// Engine walks flow graphs. It is stateless between runs; all cursor
// state lives in the FlowState it is handed.
type Engine struct {
	aiClient ai.Client
	actions  ActionExecutor
	aiParams ai.Params
	log      *logger.Logger
}

// NewEngine creates a flow engine. aiClient may be nil, in which case
// ai nodes always use their fallback text.
func NewEngine(aiClient ai.Client, actions ActionExecutor, aiParams ai.Params, log *logger.Logger) *Engine {
	return &Engine{aiClient: aiClient, actions: actions, aiParams: aiParams, log: log}
}

// Run executes one inbound turn against the graph. The input is the
// text of the inbound message; it is only consumed when the flow is
// waiting for input.
func (e *Engine) Run(ctx context.Context, graph *model.FlowGraph, state *model.FlowState, contact *model.Contact, conversationID, input string) (*Result, error) {
	if graph == nil {
		return nil, fmt.Errorf("flow: nil graph")
	}
	st := copyState(state)
	res := &Result{State: st}

	var current *model.FlowNode

	switch {
	case st.WaitingForInput && st.CurrentNodeID != nil:
		question := graph.Node(*st.CurrentNodeID)
		if question == nil {
			// Graph changed underneath a waiting conversation.
			e.complete(res, "missing_node")
			return res, nil
		}
		value, ok := matchInput(question, st, input)
		if !ok {
			// Invalid constrained reply: re-emit the prompt with the
			// valid options and stay waiting.
			res.Texts = append(res.Texts, e.prompt(question, contact, st.Vars))
			metrics.FlowRunsTotal.WithLabelValues("reprompt").Inc()
			return res, nil
		}
		if question.Variable != "" {
			st.Vars[question.Variable] = value
		}
		st.WaitingForInput = false
		st.ExpectedInput = ""
		st.Options = nil
		current = e.successor(graph, question, "")

	case !st.Started:
		start := graph.StartNode()
		if start == nil {
			e.log.Warn("flow has no start node", zap.String("conversation_id", conversationID))
			e.complete(res, "no_start")
			return res, nil
		}
		st.Started = true
		current = e.successor(graph, start, "")

	case st.CurrentNodeID != nil:
		// Resuming a mid-walk cursor; should not normally persist, but
		// pick up where the state says.
		current = graph.Node(*st.CurrentNodeID)

	default:
		// Already completed. Nothing to do.
		res.Completed = true
		return res, nil
	}

	for i := 0; i < MaxIterations; i++ {
		if current == nil {
			e.complete(res, "completed")
			return res, nil
		}
		st.CurrentNodeID = &current.ID
		metrics.FlowNodeVisitsTotal.WithLabelValues(string(current.Type)).Inc()

		switch current.Type {
		case model.NodeStart:
			current = e.successor(graph, current, "")

		case model.NodeMessage:
			res.Texts = append(res.Texts, Interpolate(current.Text, contact, st.Vars))
			current = e.successor(graph, current, "")

		case model.NodeQuestion:
			res.Texts = append(res.Texts, e.prompt(current, contact, st.Vars))
			st.WaitingForInput = true
			st.ExpectedInput = current.Input
			if st.ExpectedInput == "" {
				st.ExpectedInput = model.InputFreeText
			}
			st.Options = append([]string(nil), current.Options...)
			metrics.FlowRunsTotal.WithLabelValues("waiting").Inc()
			return res, nil

		case model.NodeCondition:
			outcome := EvaluateCondition(current, contact, st.Vars)
			current = e.branch(graph, current, outcome)

		case model.NodeAction:
			if current.Action == model.ActionHandoff {
				res.Handoff = true
				st.CurrentNodeID = nil
				st.WaitingForInput = false
				metrics.FlowRunsTotal.WithLabelValues("handoff").Inc()
				return res, nil
			}
			if e.actions != nil {
				if err := e.actions.Execute(ctx, conversationID, contact, current, st.Vars); err != nil {
					e.log.Warn("flow action failed",
						zap.String("conversation_id", conversationID),
						zap.String("node_id", current.ID),
						zap.String("action", string(current.Action)),
						zap.Error(err),
					)
				}
			}
			current = e.successor(graph, current, "")

		case model.NodeDelay:
			// Executed synchronously: the pause happens inside this
			// turn rather than via a scheduler.
			if current.DelaySeconds > 0 {
				select {
				case <-ctx.Done():
					e.complete(res, "cancelled")
					return res, ctx.Err()
				case <-time.After(time.Duration(current.DelaySeconds) * time.Second):
				}
			}
			current = e.successor(graph, current, "")

		case model.NodeAI:
			res.Texts = append(res.Texts, e.aiText(ctx, current, contact, st.Vars, conversationID))
			current = e.successor(graph, current, "")

		case model.NodeMedia:
			res.Media = append(res.Media, MediaOutput{
				URL:     current.MediaURL,
				Type:    current.MediaType,
				Caption: Interpolate(current.Caption, contact, st.Vars),
			})
			current = e.successor(graph, current, "")

		case model.NodeTemplate:
			params := make(map[string]string, len(current.Params))
			for k, v := range current.Params {
				params[k] = Interpolate(v, contact, st.Vars)
			}
			res.Templates = append(res.Templates, TemplateOutput{
				Name:     current.TemplateName,
				Language: current.Language,
				Params:   params,
			})
			current = e.successor(graph, current, "")

		default:
			e.log.Warn("unknown node type, skipping",
				zap.String("node_id", current.ID),
				zap.String("type", string(current.Type)),
			)
			current = e.successor(graph, current, "")
		}
	}

	e.log.Warn("flow iteration cap reached, forcing completion",
		zap.String("conversation_id", conversationID),
		zap.Int("cap", MaxIterations),
	)
	e.complete(res, "iteration_cap")
	return res, nil
}

func (e *Engine) complete(res *Result, outcome string) {
	res.Completed = true
	res.State.CurrentNodeID = nil
	res.State.WaitingForInput = false
	res.State.ExpectedInput = ""
	res.State.Options = nil
	metrics.FlowRunsTotal.WithLabelValues(outcome).Inc()
}

// successor follows the single outgoing edge of a node, preferring an
// edge with the given label when one exists.
func (e *Engine) successor(graph *model.FlowGraph, node *model.FlowNode, label string) *model.FlowNode {
	edges := graph.EdgesFrom(node.ID)
	if len(edges) == 0 {
		return nil
	}
	if label != "" {
		for _, edge := range edges {
			if strings.EqualFold(edge.Label, label) {
				return graph.Node(edge.To)
			}
		}
	}
	return graph.Node(edges[0].To)
}

// branch follows the edge tagged for the boolean outcome of a
// condition, falling back to positional order (first edge = true,
// second = false) when no edge carries an explicit tag.
func (e *Engine) branch(graph *model.FlowGraph, node *model.FlowNode, outcome bool) *model.FlowNode {
	edges := graph.EdgesFrom(node.ID)
	if len(edges) == 0 {
		return nil
	}
	want := "false"
	if outcome {
		want = "true"
	}
	for _, edge := range edges {
		if strings.EqualFold(edge.Label, want) {
			return graph.Node(edge.To)
		}
	}
	if outcome {
		return graph.Node(edges[0].To)
	}
	if len(edges) > 1 {
		return graph.Node(edges[1].To)
	}
	return nil
}

func (e *Engine) prompt(question *model.FlowNode, contact *model.Contact, vars map[string]string) string {
	text := Interpolate(question.Text, contact, vars)
	if len(question.Options) > 0 {
		var b strings.Builder
		b.WriteString(text)
		for i, opt := range question.Options {
			b.WriteString(fmt.Sprintf("\n%d. %s", i+1, opt))
		}
		return b.String()
	}
	return text
}

func (e *Engine) aiText(ctx context.Context, node *model.FlowNode, contact *model.Contact, vars map[string]string, conversationID string) string {
	prompt := Interpolate(node.Text, contact, vars)
	if e.aiClient != nil {
		start := time.Now()
		text, err := e.aiClient.Chat(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Content: prompt}}, e.aiParams)
		if err == nil {
			metrics.RecordAIRequest(e.aiClient.Name(), "success", time.Since(start).Seconds())
			return text
		}
		metrics.RecordAIRequest(e.aiClient.Name(), "error", time.Since(start).Seconds())
		e.log.Warn("ai node failed, using fallback",
			zap.String("conversation_id", conversationID),
			zap.String("node_id", node.ID),
			zap.Error(err),
		)
	}
	return Interpolate(node.Fallback, contact, vars)
}

// matchInput validates an inbound reply against the waiting question.
// For constrained kinds the reply must match one of the stored options
// case-insensitively; the canonical option value is returned. A
// numeric reply selecting an option by position is also accepted.
func matchInput(question *model.FlowNode, st *model.FlowState, input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	kind := st.ExpectedInput
	if kind == "" {
		kind = model.InputFreeText
	}
	if kind == model.InputFreeText || len(st.Options) == 0 {
		return trimmed, true
	}
	for i, opt := range st.Options {
		if strings.EqualFold(trimmed, opt) || trimmed == fmt.Sprintf("%d", i+1) {
			return opt, true
		}
	}
	return "", false
}

func copyState(st *model.FlowState) *model.FlowState {
	if st == nil {
		return model.NewFlowState()
	}
	cp := *st
	if st.CurrentNodeID != nil {
		id := *st.CurrentNodeID
		cp.CurrentNodeID = &id
	}
	cp.Vars = make(map[string]string, len(st.Vars))
	for k, v := range st.Vars {
		cp.Vars[k] = v
	}
	cp.Options = append([]string(nil), st.Options...)
	if cp.Version == 0 {
		cp.Version = model.FlowStateVersion
	}
	return &cp
}
