package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

// Sweeper owns the periodic jobs: the every-minute scheduled-message
// sweep and the daily dead-letter retention purge.
type Sweeper struct {
	scheduled   store.ScheduledMessageStore
	deadLetters store.DeadLetterStore
	q           queue.Queue
	retention   time.Duration
	log         *logger.Logger

	cron *cron.Cron
	now  func() time.Time
}

func NewSweeper(
	scheduled store.ScheduledMessageStore,
	deadLetters store.DeadLetterStore,
	q queue.Queue,
	retention time.Duration,
	log *logger.Logger,
) *Sweeper {
	return &Sweeper{
		scheduled:   scheduled,
		deadLetters: deadLetters,
		q:           q,
		retention:   retention,
		log:         log,
		cron:        cron.New(),
		now:         time.Now,
	}
}

// Start registers the cron entries and begins the schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("* * * * *", func() { s.sweepDue(ctx) }); err != nil {
		return fmt.Errorf("register scheduled-message sweep: %w", err)
	}
	if _, err := s.cron.AddFunc("30 3 * * *", func() { s.purgeDeadLetters(ctx) }); err != nil {
		return fmt.Errorf("register dead-letter purge: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for running entries.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// sweepDue enqueues one delivery job per due scheduled message. The
// handler marks the row, so a message picked up by two overlapping
// sweeps sends at most once.
func (s *Sweeper) sweepDue(ctx context.Context) {
	due, err := s.scheduled.DueBefore(ctx, s.now())
	if err != nil {
		s.log.Error("scheduled-message sweep failed", zap.Error(err))
		return
	}
	for i := range due {
		m := &due[i]
		job, err := queue.NewJob(model.JobScheduled, &queue.ScheduledJobPayload{ScheduledMessageID: m.ID})
		if err != nil {
			s.log.Error("build scheduled job", zap.String("scheduled_id", m.ID), zap.Error(err))
			continue
		}
		if err := s.q.Enqueue(ctx, job); err != nil {
			s.log.Error("enqueue scheduled job", zap.String("scheduled_id", m.ID), zap.Error(err))
			continue
		}
	}
	if len(due) > 0 {
		s.log.Info("scheduled-message sweep", zap.Int("due", len(due)))
	}
}

func (s *Sweeper) purgeDeadLetters(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.deadLetters.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("dead-letter purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("dead-letter purge", zap.Int("removed", n))
	}
}

// ScheduledRunner delivers one due scheduled message.
type ScheduledRunner struct {
	scheduled     store.ScheduledMessageStore
	conversations store.ConversationStore
	messages      store.MessageStore
	outbound      *Outbound
	log           *logger.Logger

	now func() time.Time
}

func NewScheduledRunner(
	scheduled store.ScheduledMessageStore,
	conversations store.ConversationStore,
	messages store.MessageStore,
	outbound *Outbound,
	log *logger.Logger,
) *ScheduledRunner {
	return &ScheduledRunner{
		scheduled:     scheduled,
		conversations: conversations,
		messages:      messages,
		outbound:      outbound,
		log:           log,
		now:           time.Now,
	}
}

// Handle is the queue handler for scheduled_message jobs.
func (r *ScheduledRunner) Handle(ctx context.Context, job *model.Job) error {
	var p queue.ScheduledJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode scheduled payload: %w", err)
	}

	sm, err := r.scheduled.Get(ctx, p.ScheduledMessageID)
	if err != nil {
		return fmt.Errorf("load scheduled message: %w", err)
	}
	if sm.Status != model.ScheduledPending {
		// Another worker or an overlapping sweep already handled it.
		return nil
	}

	conv, err := r.conversations.Get(ctx, sm.ConversationID)
	if err != nil {
		return r.fail(ctx, sm.ID, fmt.Errorf("load conversation: %w", err))
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		ChannelID:      conv.ChannelID,
		Direction:      model.DirectionOutbound,
		Type:           model.MessageTypeText,
		Content:        sm.Body,
		Status:         model.MessageStatusPending,
		FromMe:         true,
		CreatedAt:      r.now(),
	}
	if err := r.messages.CreateIfAbsent(ctx, msg); err != nil {
		return r.fail(ctx, sm.ID, fmt.Errorf("persist message: %w", err))
	}

	if err := r.outbound.Deliver(ctx, &queue.OutboundSendPayload{MessageID: msg.ID}); err != nil {
		return r.fail(ctx, sm.ID, err)
	}
	return r.scheduled.SetStatus(ctx, sm.ID, model.ScheduledSent, "")
}

func (r *ScheduledRunner) fail(ctx context.Context, id string, cause error) error {
	r.log.Warn("scheduled message failed", zap.String("scheduled_id", id), zap.Error(cause))
	return r.scheduled.SetStatus(ctx, id, model.ScheduledFailed, cause.Error())
}
