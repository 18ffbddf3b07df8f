package model

// NodeType identifies the behavior of a flow graph node.
type NodeType string

const (
	NodeStart     NodeType = "start"
	NodeMessage   NodeType = "message"
	NodeQuestion  NodeType = "question"
	NodeCondition NodeType = "condition"
	NodeAction    NodeType = "action"
	NodeDelay     NodeType = "delay"
	NodeAI        NodeType = "ai"
	NodeMedia     NodeType = "media"
	NodeTemplate  NodeType = "template"
)

// InputKind is the kind of reply a question node expects.
type InputKind string

const (
	InputFreeText InputKind = "free_text"
	InputButton   InputKind = "button"
	InputList     InputKind = "list"
)

// ConditionOp is a comparison operator used by condition nodes.
type ConditionOp string

const (
	OpEquals      ConditionOp = "equals"
	OpNotEquals   ConditionOp = "not_equals"
	OpContains    ConditionOp = "contains"
	OpNotContains ConditionOp = "not_contains"
	OpStartsWith  ConditionOp = "starts_with"
	OpEndsWith    ConditionOp = "ends_with"
	OpGreaterThan ConditionOp = "greater_than"
	OpLessThan    ConditionOp = "less_than"
	OpIsEmpty     ConditionOp = "is_empty"
	OpIsNotEmpty  ConditionOp = "is_not_empty"
)

// ActionKind identifies the side effect performed by an action node.
type ActionKind string

const (
	ActionAddTag      ActionKind = "add_tag"
	ActionRemoveTag   ActionKind = "remove_tag"
	ActionChangeStage ActionKind = "change_stage"
	ActionCreateDeal  ActionKind = "create_deal"
	ActionAssignAgent ActionKind = "assign_agent"
	ActionWebhook     ActionKind = "webhook"
	ActionHandoff     ActionKind = "handoff"
)

// FlowNode is one typed node in a flow graph. Only the fields relevant
// to the node's type are populated.
type FlowNode struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// message, question, ai: the (interpolatable) text to emit.
	Text string `json:"text,omitempty"`

	// question: reply constraints and the variable the answer binds to.
	Input    InputKind `json:"input,omitempty"`
	Options  []string  `json:"options,omitempty"`
	Variable string    `json:"variable,omitempty"`

	// condition: left operand is a variable reference.
	CondVariable string      `json:"cond_variable,omitempty"`
	CondOp       ConditionOp `json:"cond_op,omitempty"`
	CondValue    string      `json:"cond_value,omitempty"`

	// action
	Action      ActionKind `json:"action,omitempty"`
	ActionValue string     `json:"action_value,omitempty"`
	WebhookURL  string     `json:"webhook_url,omitempty"`

	// delay: seconds to wait before continuing.
	DelaySeconds int `json:"delay_seconds,omitempty"`

	// ai: fallback text appended when the AI collaborator fails.
	Fallback string `json:"fallback,omitempty"`

	// media
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Caption   string `json:"caption,omitempty"`

	// template
	TemplateName string            `json:"template_name,omitempty"`
	Language     string            `json:"language,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// FlowEdge connects two nodes, optionally tagged with a branch label
// ("true"/"false" for conditions, a button value for questions).
type FlowEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// FlowGraph is the immutable node/edge definition of one scripted
// chatbot. It is configuration: the interpreter never mutates it.
type FlowGraph struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *FlowGraph) Node(id string) *FlowNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the unique start node, or nil if the graph has none.
func (g *FlowGraph) StartNode() *FlowNode {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeStart {
			return &g.Nodes[i]
		}
	}
	return nil
}

// EdgesFrom returns the outgoing edges of a node in declaration order.
func (g *FlowGraph) EdgesFrom(nodeID string) []FlowEdge {
	var out []FlowEdge
	for _, e := range g.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// FlowStateVersion is the current FlowState schema version.
const FlowStateVersion = 1

// FlowState is the execution cursor for one in-progress scripted
// conversation. It is owned exclusively by the conversation and is
// always written as a whole-object replace, never merged, so two
// concurrent turns cannot produce a lost update.
type FlowState struct {
	Version int `json:"version"`

	// CurrentNodeID is nil before the flow starts and after it
	// completes. While waiting for input it points at the question
	// node that paused execution.
	CurrentNodeID *string `json:"current_node_id,omitempty"`

	Vars map[string]string `json:"vars,omitempty"`

	WaitingForInput bool      `json:"waiting_for_input"`
	ExpectedInput   InputKind `json:"expected_input,omitempty"`
	Options         []string  `json:"options,omitempty"`

	// Started distinguishes COMPLETED (ran and finished) from
	// NOT_STARTED (never ran): both have a nil CurrentNodeID.
	Started bool `json:"started"`
}

// NewFlowState returns an empty, not-started state.
func NewFlowState() *FlowState {
	return &FlowState{Version: FlowStateVersion, Vars: map[string]string{}}
}

// InProgress reports whether the flow has begun and not yet finished.
func (s *FlowState) InProgress() bool {
	return s != nil && (s.CurrentNodeID != nil || s.WaitingForInput)
}
