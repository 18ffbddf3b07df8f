package model

import (
	"time"
)

// CampaignStatus is the lifecycle status of a broadcast campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCancelled CampaignStatus = "CANCELLED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// CampaignResult records the send outcome for one campaign target.
type CampaignResult struct {
	ContactID string        `json:"contact_id"`
	Status    MessageStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	SentAt    time.Time     `json:"sent_at"`
}

// Campaign is a broadcast to a list of contacts, paced by a configured
// messages-per-second rate. Runners re-read the live status before each
// send so pause/cancel takes effect cooperatively, one contact at most
// after the change.
type Campaign struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	ChannelID string         `json:"channel_id"`
	Name      string         `json:"name"`
	Status    CampaignStatus `json:"status"`

	Body              string  `json:"body,omitempty"`
	TemplateName      string  `json:"template_name,omitempty"`
	Language          string  `json:"language,omitempty"`
	MessagesPerSecond float64 `json:"messages_per_second"`

	ContactIDs []string `json:"contact_ids"`

	SentCount   int `json:"sent_count"`
	FailedCount int `json:"failed_count"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ScheduledMessageStatus is the lifecycle of a one-off scheduled send.
type ScheduledMessageStatus string

const (
	ScheduledPending ScheduledMessageStatus = "PENDING"
	ScheduledSent    ScheduledMessageStatus = "SENT"
	ScheduledFailed  ScheduledMessageStatus = "FAILED"
)

// ScheduledMessage is a single outbound message due at a future time,
// picked up by the scheduled-message sweep.
type ScheduledMessage struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Body           string                 `json:"body"`
	SendAt         time.Time              `json:"send_at"`
	Status         ScheduledMessageStatus `json:"status"`
	Error          string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
