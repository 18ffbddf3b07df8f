package model

import (
	"encoding/json"
	"time"
)

// JobType is the category of a queued job. Each category runs on its
// own worker pool so a slow provider in one pool cannot starve another.
type JobType string

const (
	JobCampaign     JobType = "campaign"
	JobScheduled    JobType = "scheduled_message"
	JobAIReply      JobType = "ai_reply"
	JobWebhookRelay JobType = "webhook_relay"
)

// Job is the durable queue entry wire format. Any queue substrate with
// at-least-once delivery and delayed scheduling satisfies it.
type Job struct {
	ID           string          `json:"id"`
	Type         JobType         `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WebhookRelayPayload is the payload of a webhook_relay job: an
// outbound HTTP POST to an external URL with retry guarantees.
type WebhookRelayPayload struct {
	URL     string            `json:"url"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// DeadLetter is a job that exhausted its retry budget, retained for a
// bounded period for manual inspection or replay.
type DeadLetter struct {
	ID         string     `json:"id"`
	Job        Job        `json:"job"`
	LastError  string     `json:"last_error"`
	FailedAt   time.Time  `json:"failed_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}
