package queue

import (
	"context"
	"sync"
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/pkg/metrics"
)

// MemoryQueue is an in-process Queue for development and tests. Jobs
// with a future ScheduledAt are held back on a timer.
type MemoryQueue struct {
	mu     sync.Mutex
	chans  map[model.JobType]chan *model.Job
	closed bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{chans: make(map[model.JobType]chan *model.Job)}
}

func (q *MemoryQueue) channel(t model.JobType) chan *model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chans[t]
	if !ok {
		ch = make(chan *model.Job, 1024)
		q.chans[t] = ch
	}
	return ch
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *model.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	ch := q.channel(job.Type)
	deliver := func() {
		metrics.QueueDepth.WithLabelValues(string(job.Type)).Inc()
		select {
		case ch <- job:
		default:
			// Buffer full: block rather than drop.
			ch <- job
		}
	}
	if delay := time.Until(job.ScheduledAt); delay > 0 {
		time.AfterFunc(delay, deliver)
		return nil
	}
	deliver()
	return nil
}

// Consume implements Queue.
func (q *MemoryQueue) Consume(ctx context.Context, jobType model.JobType, concurrency int, h Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	ch := q.channel(jobType)
	for i := 0; i < concurrency; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-ch:
					metrics.QueueDepth.WithLabelValues(string(jobType)).Dec()
					// Handler errors are the handler's concern; the
					// queue only guarantees delivery.
					_ = h(ctx, job)
				}
			}
		}()
	}
	return nil
}
