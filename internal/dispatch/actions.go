package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omnidesk/omnichannel-crm/internal/assign"
	"github.com/omnidesk/omnichannel-crm/internal/flow"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

// DealCreator is the external CRM collaborator that records deals.
type DealCreator interface {
	CreateDeal(ctx context.Context, contactID, title string) error
}

// AgentDirectory lists agents eligible for assignment.
type AgentDirectory interface {
	Candidates(ctx context.Context) ([]string, error)
}

// StaticAgents is an AgentDirectory backed by a fixed list, typically
// loaded from configuration.
type StaticAgents []string

// Candidates implements AgentDirectory.
func (a StaticAgents) Candidates(ctx context.Context) ([]string, error) {
	return append([]string(nil), a...), nil
}

// Actions executes flow action-node side effects against the external
// collaborators. Every effect is best-effort: the interpreter logs a
// returned error and advances regardless.
type Actions struct {
	contacts      store.ContactStore
	conversations store.ConversationStore
	picker        assign.Picker
	agents        AgentDirectory
	deals         DealCreator
	q             queue.Queue
	maxAttempts   int
	log           *logger.Logger
}

// NewActions creates the action executor. picker, agents and deals may
// be nil when the matching collaborator is not configured; the
// corresponding actions then fail soft.
func NewActions(
	contacts store.ContactStore,
	conversations store.ConversationStore,
	picker assign.Picker,
	agents AgentDirectory,
	deals DealCreator,
	q queue.Queue,
	webhookMaxAttempts int,
	log *logger.Logger,
) *Actions {
	if webhookMaxAttempts <= 0 {
		webhookMaxAttempts = 5
	}
	return &Actions{
		contacts:      contacts,
		conversations: conversations,
		picker:        picker,
		agents:        agents,
		deals:         deals,
		q:             q,
		maxAttempts:   webhookMaxAttempts,
		log:           log,
	}
}

// Execute implements flow.ActionExecutor.
func (a *Actions) Execute(ctx context.Context, conversationID string, contact *model.Contact, node *model.FlowNode, vars map[string]string) error {
	value := flow.Interpolate(node.ActionValue, contact, vars)

	switch node.Action {
	case model.ActionAddTag:
		return a.updateContact(ctx, contact.ID, func(c *model.Contact) { c.AddTag(value) })

	case model.ActionRemoveTag:
		return a.updateContact(ctx, contact.ID, func(c *model.Contact) { c.RemoveTag(value) })

	case model.ActionChangeStage:
		return a.updateContact(ctx, contact.ID, func(c *model.Contact) { c.Stage = model.Stage(value) })

	case model.ActionCreateDeal:
		if a.deals == nil {
			return fmt.Errorf("no deal collaborator configured")
		}
		return a.deals.CreateDeal(ctx, contact.ID, value)

	case model.ActionAssignAgent:
		return a.assignAgent(ctx, conversationID)

	case model.ActionWebhook:
		return a.enqueueWebhook(ctx, conversationID, contact, node, vars)
	}

	return fmt.Errorf("unknown action %q", node.Action)
}

func (a *Actions) updateContact(ctx context.Context, contactID string, mutate func(*model.Contact)) error {
	c, err := a.contacts.Get(ctx, contactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	mutate(c)
	return a.contacts.Update(ctx, c)
}

func (a *Actions) assignAgent(ctx context.Context, conversationID string) error {
	if a.picker == nil || a.agents == nil {
		return fmt.Errorf("no assignment collaborator configured")
	}
	candidates, err := a.agents.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	agentID, err := a.picker.PickAgent(ctx, candidates, assign.StrategyRoundRobin, assign.Filters{OnlineOnly: true})
	if err != nil {
		return fmt.Errorf("pick agent: %w", err)
	}
	conv, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	conv.AssignedAgentID = agentID
	conv.Status = model.ConversationPending
	return a.conversations.Update(ctx, conv)
}

// enqueueWebhook hands the call to the retry queue rather than calling
// the URL inline, so a slow endpoint cannot stall the flow turn.
func (a *Actions) enqueueWebhook(ctx context.Context, conversationID string, contact *model.Contact, node *model.FlowNode, vars map[string]string) error {
	if node.WebhookURL == "" {
		return fmt.Errorf("webhook action has no URL")
	}
	body, err := json.Marshal(map[string]any{
		"conversation_id": conversationID,
		"contact": map[string]string{
			"id":          contact.ID,
			"external_id": contact.ExternalID,
			"name":        contact.Name,
		},
		"variables": vars,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}
	job, err := queue.NewJob(model.JobWebhookRelay, &model.WebhookRelayPayload{
		URL:  node.WebhookURL,
		Body: body,
	})
	if err != nil {
		return err
	}
	job.MaxAttempts = a.maxAttempts
	return a.q.Enqueue(ctx, job)
}
