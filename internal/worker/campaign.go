package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
	"github.com/omnidesk/omnichannel-crm/pkg/metrics"
)

// DefaultCampaignRate is the pacing used when a campaign does not set
// its own messages-per-second value.
const DefaultCampaignRate = 2.0

// CampaignRunner executes one campaign job end to end: it walks the
// target list behind a rate limiter and re-reads the campaign status
// before every send so pause and cancel take effect within one contact.
type CampaignRunner struct {
	campaigns store.CampaignStore
	contacts  store.ContactStore
	messages  store.MessageStore
	outbound  *Outbound
	log       *logger.Logger

	now func() time.Time
}

func NewCampaignRunner(
	campaigns store.CampaignStore,
	contacts store.ContactStore,
	messages store.MessageStore,
	outbound *Outbound,
	log *logger.Logger,
) *CampaignRunner {
	return &CampaignRunner{
		campaigns: campaigns,
		contacts:  contacts,
		messages:  messages,
		outbound:  outbound,
		log:       log,
		now:       time.Now,
	}
}

// Handle is the queue handler for campaign jobs.
func (r *CampaignRunner) Handle(ctx context.Context, job *model.Job) error {
	var p queue.CampaignJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode campaign payload: %w", err)
	}
	return r.Run(ctx, p.CampaignID)
}

// Run sends a campaign. Already-sent contacts are skipped on resume, so
// a paused campaign picks up where it left off when re-enqueued.
func (r *CampaignRunner) Run(ctx context.Context, campaignID string) error {
	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	switch c.Status {
	case model.CampaignScheduled, model.CampaignRunning:
	default:
		r.log.Info("campaign not runnable, skipping",
			zap.String("campaign_id", campaignID),
			zap.String("status", string(c.Status)))
		return nil
	}
	if err := r.campaigns.SetStatus(ctx, campaignID, model.CampaignRunning); err != nil {
		return err
	}

	done, err := r.sentContacts(ctx, campaignID)
	if err != nil {
		return err
	}

	mps := c.MessagesPerSecond
	if mps <= 0 {
		mps = DefaultCampaignRate
	}
	limiter := rate.NewLimiter(rate.Limit(mps), 1)

	for _, contactID := range c.ContactIDs {
		if done[contactID] {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		// Live status read: pause/cancel from the ops surface must stop
		// the walk, not just future runs.
		cur, err := r.campaigns.Get(ctx, campaignID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case model.CampaignPaused:
			r.log.Info("campaign paused mid-run", zap.String("campaign_id", campaignID))
			return nil
		case model.CampaignCancelled:
			r.log.Info("campaign cancelled mid-run", zap.String("campaign_id", campaignID))
			return nil
		case model.CampaignRunning:
		default:
			return nil
		}

		res := r.sendOne(ctx, cur, contactID)
		if err := r.campaigns.RecordResult(ctx, campaignID, res); err != nil {
			return err
		}
		status := "sent"
		if res.Error != "" {
			status = "failed"
		}
		metrics.CampaignSendsTotal.WithLabelValues(status).Inc()
	}

	return r.campaigns.SetStatus(ctx, campaignID, model.CampaignCompleted)
}

// sendOne persists the outbound message and delivers it inline. All
// failures collapse into the per-contact result; one bad contact never
// aborts the campaign.
func (r *CampaignRunner) sendOne(ctx context.Context, c *model.Campaign, contactID string) model.CampaignResult {
	res := model.CampaignResult{
		ContactID: contactID,
		Status:    model.MessageStatusSent,
		SentAt:    r.now(),
	}

	contact, err := r.contacts.Get(ctx, contactID)
	if err != nil {
		return failedResult(res, fmt.Errorf("load contact: %w", err))
	}

	msgType := model.MessageTypeText
	if c.TemplateName != "" {
		msgType = model.MessageTypeTemplate
	}
	msg := &model.Message{
		ChannelID: c.ChannelID,
		Direction: model.DirectionOutbound,
		Type:      msgType,
		Content:   c.Body,
		Status:    model.MessageStatusPending,
		FromMe:    true,
		CreatedAt: r.now(),
	}
	if err := r.messages.CreateIfAbsent(ctx, msg); err != nil {
		return failedResult(res, fmt.Errorf("persist message: %w", err))
	}

	channel, err := r.outbound.channels.Get(ctx, c.ChannelID)
	if err != nil {
		return failedResult(res, fmt.Errorf("load channel: %w", err))
	}
	sender, err := r.outbound.senders.ForChannel(channel)
	if err != nil {
		return failedResult(res, err)
	}

	var externalID string
	if c.TemplateName != "" {
		externalID, err = sender.SendTemplate(ctx, channel, contact.ExternalID, c.TemplateName, c.Language, nil)
	} else {
		externalID, err = sender.SendText(ctx, channel, contact.ExternalID, c.Body)
	}
	if err != nil {
		_ = r.messages.MarkSendResult(ctx, msg.ID, "", model.MessageStatusFailed, err.Error())
		return failedResult(res, err)
	}
	_ = r.messages.MarkSendResult(ctx, msg.ID, externalID, model.MessageStatusSent, "")
	return res
}

// sentContacts returns the contacts already handled in earlier runs of
// this campaign.
func (r *CampaignRunner) sentContacts(ctx context.Context, campaignID string) (map[string]bool, error) {
	results, err := r.campaigns.Results(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(results))
	for _, res := range results {
		done[res.ContactID] = true
	}
	return done, nil
}

func failedResult(res model.CampaignResult, err error) model.CampaignResult {
	res.Status = model.MessageStatusFailed
	res.Error = err.Error()
	return res
}
