// Package store defines the persistence contracts for the canonical
// model and provides in-memory implementations. The relational layer
// is an external collaborator; everything in the pipeline goes through
// these interfaces and never bypasses the idempotency and dedup rules
// they encode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing
// unique key (notably a message's external id).
var ErrDuplicate = errors.New("duplicate")

// ContactStore persists contacts, unique per (ExternalID, ChannelID).
type ContactStore interface {
	// UpsertByExternalID returns the contact for the given channel and
	// external id, creating it with stage NEW if unseen. A non-empty
	// name only fills in a missing name, never overwrites an existing
	// one. The boolean reports whether the contact was created.
	UpsertByExternalID(ctx context.Context, channelID, externalID, name string) (*model.Contact, bool, error)

	Get(ctx context.Context, id string) (*model.Contact, error)
	Update(ctx context.Context, contact *model.Contact) error
}

// ConversationStore persists conversations and their flow state.
type ConversationStore interface {
	// FindActive returns the single OPEN or PENDING conversation for a
	// (contact, channel) pair, or ErrNotFound.
	FindActive(ctx context.Context, contactID, channelID string) (*model.Conversation, error)

	// FindOrCreateActive returns the active conversation for the pair
	// carried by conv, creating conv in one atomic step when none
	// exists. Concurrent first-inbound events therefore cannot produce
	// two active conversations. The boolean reports creation.
	FindOrCreateActive(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error)

	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Update(ctx context.Context, conv *model.Conversation) error

	// ReplaceFlowState writes the flow state as a whole-object
	// replace. A nil state clears it.
	ReplaceFlowState(ctx context.Context, conversationID string, state *model.FlowState) error

	// SetAIEnabled flips automation for a conversation. Disabling also
	// clears any flow state.
	SetAIEnabled(ctx context.Context, conversationID string, enabled bool) error
}

// MessageStore persists messages, unique per ExternalID.
type MessageStore interface {
	// CreateIfAbsent inserts the message unless one with the same
	// external id already exists, in which case it returns
	// ErrDuplicate and leaves the store unchanged.
	CreateIfAbsent(ctx context.Context, msg *model.Message) error

	Get(ctx context.Context, id string) (*model.Message, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Message, error)

	// UpdateStatus records the latest known delivery status for the
	// message with the given external id.
	UpdateStatus(ctx context.Context, externalID string, status model.MessageStatus, errCode, errMsg string) error

	// MarkSendResult records the outcome of an outbound send by
	// internal message id, stamping the provider-assigned external id
	// on success.
	MarkSendResult(ctx context.Context, id, externalID string, status model.MessageStatus, errMsg string) error

	// ListRecent returns up to limit messages of a conversation in
	// chronological order, newest last.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// ChannelStore resolves channels by provider identity.
type ChannelStore interface {
	Create(ctx context.Context, ch *model.Channel) error
	Get(ctx context.Context, id string) (*model.Channel, error)

	// GetByProviderChannelID looks up the channel a webhook payload
	// belongs to: bridge instance name, Cloud API phone-number-id or
	// Instagram page id.
	GetByProviderChannelID(ctx context.Context, provider model.Provider, providerChannelID string) (*model.Channel, error)
}

// ChatbotStore persists chatbot configurations.
type ChatbotStore interface {
	Create(ctx context.Context, bot *model.Chatbot) error
	Get(ctx context.Context, id string) (*model.Chatbot, error)

	// ResolveForTenant returns the tenant's default-flagged active
	// chatbot, falling back to the first active one by creation order,
	// or ErrNotFound when none is active.
	ResolveForTenant(ctx context.Context, tenantID string) (*model.Chatbot, error)
}

// CampaignStore persists campaigns with live status and counters.
type CampaignStore interface {
	Create(ctx context.Context, c *model.Campaign) error
	Get(ctx context.Context, id string) (*model.Campaign, error)
	SetStatus(ctx context.Context, id string, status model.CampaignStatus) error

	// RecordResult appends a per-contact result and bumps the matching
	// campaign counter so observers see live progress.
	RecordResult(ctx context.Context, id string, res model.CampaignResult) error
	Results(ctx context.Context, id string) ([]model.CampaignResult, error)
}

// ScheduledMessageStore persists one-off future sends.
type ScheduledMessageStore interface {
	Create(ctx context.Context, m *model.ScheduledMessage) error
	Get(ctx context.Context, id string) (*model.ScheduledMessage, error)
	DueBefore(ctx context.Context, t time.Time) ([]model.ScheduledMessage, error)
	SetStatus(ctx context.Context, id string, status model.ScheduledMessageStatus, errText string) error
}

// DeadLetterStore retains exhausted jobs for a bounded period.
type DeadLetterStore interface {
	Add(ctx context.Context, dl *model.DeadLetter) error
	Get(ctx context.Context, id string) (*model.DeadLetter, error)
	List(ctx context.Context) ([]model.DeadLetter, error)
	MarkReplayed(ctx context.Context, id string) error

	// PurgeBefore deletes entries that failed before the cutoff and
	// returns how many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}
