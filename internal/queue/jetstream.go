package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

const (
	// StreamName is the name of the jobs stream.
	StreamName = "JOBS"

	// SubjectPrefix is the prefix for all job subjects.
	SubjectPrefix = "jobs"
)

// JetStreamQueue is the durable Queue backed by NATS JetStream. Delayed
// scheduling is implemented by NAK-ing messages whose scheduled time
// has not arrived, which requeues them with the remaining delay.
type JetStreamQueue struct {
	client *NATSClient
	log    *logger.Logger
}

// NewJetStreamQueue creates a queue on an existing NATS client.
func NewJetStreamQueue(client *NATSClient, log *logger.Logger) *JetStreamQueue {
	return &JetStreamQueue{client: client, log: log}
}

// EnsureStream ensures the jobs stream exists with proper configuration.
func (q *JetStreamQueue) EnsureStream(ctx context.Context) error {
	js := q.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Delivery pipeline jobs",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// JobSubject returns the subject for a job category.
func JobSubject(jobType model.JobType) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, jobType)
}

// Enqueue implements Queue.
func (q *JetStreamQueue) Enqueue(ctx context.Context, job *model.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if _, err := q.client.JetStream().Publish(ctx, JobSubject(job.Type), data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Consume implements Queue. Each job category gets a durable consumer;
// handler errors are logged and the message acknowledged, because any
// retry is the handler's own responsibility.
func (q *JetStreamQueue) Consume(ctx context.Context, jobType model.JobType, concurrency int, h Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	js := q.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       "workers-" + string(jobType),
		FilterSubject: JobSubject(jobType),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxAckPending: concurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var job model.Job
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			q.log.Error("dropping malformed job", zap.Error(err))
			_ = msg.Ack()
			return
		}

		if delay := time.Until(job.ScheduledAt); delay > 0 {
			_ = msg.NakWithDelay(delay)
			return
		}

		if err := h(ctx, &job); err != nil {
			q.log.Error("job handler failed",
				zap.String("job_id", job.ID),
				zap.String("type", string(job.Type)),
				zap.Error(err),
			)
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}
