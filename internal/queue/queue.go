// Package queue provides the durable job queue behind the delivery
// subsystem. Jobs carry a scheduled-at time; any substrate offering
// at-least-once delivery and delayed scheduling satisfies the Queue
// interface. Production uses NATS JetStream; development and tests use
// the in-memory implementation.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// Handler processes one job. Returning an error logs the failure; any
// retry or requeue is the handler's own responsibility, so sibling
// jobs are never affected.
type Handler func(ctx context.Context, job *model.Job) error

// Queue is the durable job queue contract.
type Queue interface {
	// Enqueue persists a job. A future ScheduledAt delays delivery.
	Enqueue(ctx context.Context, job *model.Job) error

	// Consume runs handlers for one job category with bounded
	// concurrency until the context is cancelled.
	Consume(ctx context.Context, jobType model.JobType, concurrency int, h Handler) error
}

// NewJob builds a job with a fresh id and marshaled payload, due
// immediately.
func NewJob(jobType model.JobType, payload any) (*model.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return &model.Job{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Type:        jobType,
		Payload:     data,
		MaxAttempts: 1,
		ScheduledAt: time.Now(),
		CreatedAt:   time.Now(),
	}, nil
}

// OutboundSendPayload is the payload of campaign, scheduled and
// ai_reply jobs: one persisted outbound message to push through a
// provider adapter.
type OutboundSendPayload struct {
	MessageID string `json:"message_id"`

	// Template details live here rather than on the message row.
	TemplateName string            `json:"template_name,omitempty"`
	Language     string            `json:"language,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// CampaignJobPayload starts one campaign run.
type CampaignJobPayload struct {
	CampaignID string `json:"campaign_id"`
}

// ScheduledJobPayload delivers one due scheduled message.
type ScheduledJobPayload struct {
	ScheduledMessageID string `json:"scheduled_message_id"`
}
