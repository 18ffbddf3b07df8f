package worker

import (
	"context"
	"fmt"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

// Concurrency sets the pool width per job category.
type Concurrency struct {
	Campaign  int
	Scheduled int
	AIReply   int
	Retry     int
}

// Pool binds the job handlers to their queue consumers.
type Pool struct {
	q           queue.Queue
	outbound    *Outbound
	campaigns   *CampaignRunner
	scheduled   *ScheduledRunner
	relay       *WebhookRelayRunner
	concurrency Concurrency
	log         *logger.Logger
}

func NewPool(
	q queue.Queue,
	outbound *Outbound,
	campaigns *CampaignRunner,
	scheduled *ScheduledRunner,
	relay *WebhookRelayRunner,
	concurrency Concurrency,
	log *logger.Logger,
) *Pool {
	return &Pool{
		q:           q,
		outbound:    outbound,
		campaigns:   campaigns,
		scheduled:   scheduled,
		relay:       relay,
		concurrency: concurrency,
		log:         log,
	}
}

// Start begins consuming every job category. Consumers run until the
// context is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	consumers := []struct {
		jobType     model.JobType
		concurrency int
		handler     queue.Handler
	}{
		{model.JobAIReply, p.concurrency.AIReply, p.outbound.HandleSendJob},
		{model.JobCampaign, p.concurrency.Campaign, p.campaigns.Handle},
		{model.JobScheduled, p.concurrency.Scheduled, p.scheduled.Handle},
		{model.JobWebhookRelay, p.concurrency.Retry, p.relay.Handle},
	}
	for _, c := range consumers {
		if c.concurrency <= 0 {
			c.concurrency = 1
		}
		if err := p.q.Consume(ctx, c.jobType, c.concurrency, c.handler); err != nil {
			return fmt.Errorf("start %s consumer: %w", c.jobType, err)
		}
	}
	return nil
}
