package model

import (
	"time"
)

// ConversationStatus is the lifecycle status of a conversation thread.
type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "OPEN"
	ConversationPending  ConversationStatus = "PENDING"
	ConversationResolved ConversationStatus = "RESOLVED"
	ConversationClosed   ConversationStatus = "CLOSED"
)

// Conversation is the open thread between one contact and one channel.
// At most one conversation with status OPEN or PENDING exists per
// (Contact, Channel) pair; the normalizer reuses the existing open
// conversation instead of creating duplicates.
type Conversation struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	ChannelID string `json:"channel_id"`

	Status          ConversationStatus `json:"status"`
	AssignedAgentID string             `json:"assigned_agent_id,omitempty"`
	UnreadCount     int                `json:"unread_count"`

	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`

	// AIEnabled gates all automation for this conversation. Handoff
	// actions flip it off; FlowState is cleared at the same time.
	AIEnabled bool `json:"ai_enabled"`

	// ChatbotID optionally pins this conversation to a specific
	// chatbot, overriding the tenant default.
	ChatbotID string `json:"chatbot_id,omitempty"`

	FlowState *FlowState `json:"flow_state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the conversation counts against the
// one-open-conversation invariant.
func (c *Conversation) IsActive() bool {
	return c.Status == ConversationOpen || c.Status == ConversationPending
}
