package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
	"github.com/omnidesk/omnichannel-crm/pkg/metrics"
)

// RetryPolicy shapes the delay between webhook relay attempts.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter is the fraction of randomization applied to each delay.
	Jitter float64
}

// DefaultRetryPolicy doubles from 30 seconds up to a 30 minute cap with
// 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay: 30 * time.Second,
		MaxDelay:  30 * time.Minute,
		Jitter:    0.1,
	}
}

// Delay returns the wait before the given retry attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// WebhookRelayRunner delivers webhook_relay jobs: flow action webhooks
// posted to external endpoints. Failures re-enqueue the job with
// exponential backoff until the attempt budget runs out, at which point
// the job is dead-lettered.
type WebhookRelayRunner struct {
	q           queue.Queue
	deadLetters store.DeadLetterStore
	policy      RetryPolicy
	client      *http.Client
	log         *logger.Logger

	now func() time.Time
}

func NewWebhookRelayRunner(q queue.Queue, deadLetters store.DeadLetterStore, policy RetryPolicy, log *logger.Logger) *WebhookRelayRunner {
	return &WebhookRelayRunner{
		q:           q,
		deadLetters: deadLetters,
		policy:      policy,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		now:         time.Now,
	}
}

// Handle is the queue handler for webhook_relay jobs.
func (r *WebhookRelayRunner) Handle(ctx context.Context, job *model.Job) error {
	var p model.WebhookRelayPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		// Undecodable payloads would fail forever; dead-letter directly.
		return r.deadLetter(ctx, job, fmt.Errorf("decode relay payload: %w", err))
	}

	err := r.post(ctx, &p)
	if err == nil {
		return nil
	}

	job.AttemptCount++
	if job.AttemptCount >= job.MaxAttempts {
		r.log.Warn("webhook relay exhausted retries",
			zap.String("job_id", job.ID),
			zap.String("url", p.URL),
			zap.Int("attempts", job.AttemptCount),
			zap.Error(err))
		return r.deadLetter(ctx, job, err)
	}

	delay := r.policy.Delay(job.AttemptCount - 1)
	job.ScheduledAt = r.now().Add(delay)
	if enqErr := r.q.Enqueue(ctx, job); enqErr != nil {
		return fmt.Errorf("reschedule relay job: %w", enqErr)
	}
	metrics.WebhookRetriesTotal.Inc()
	r.log.Info("webhook relay retry scheduled",
		zap.String("job_id", job.ID),
		zap.String("url", p.URL),
		zap.Int("attempt", job.AttemptCount),
		zap.Duration("delay", delay),
		zap.Error(err))
	return nil
}

// post performs the relay call. Any non-2xx response counts as a
// failure; the body is drained so connections are reused.
func (r *WebhookRelayRunner) post(ctx context.Context, p *model.WebhookRelayPayload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(p.Body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (r *WebhookRelayRunner) deadLetter(ctx context.Context, job *model.Job, cause error) error {
	dl := &model.DeadLetter{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Job:       *job,
		LastError: cause.Error(),
		FailedAt:  r.now(),
	}
	if err := r.deadLetters.Add(ctx, dl); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	metrics.DeadLettersTotal.WithLabelValues(string(job.Type)).Inc()
	return nil
}
