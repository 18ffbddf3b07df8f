package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

type captureQueue struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (q *captureQueue) Enqueue(ctx context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *job
	q.jobs = append(q.jobs, &cp)
	return nil
}

func (q *captureQueue) Consume(ctx context.Context, jobType model.JobType, concurrency int, h queue.Handler) error {
	return nil
}

func (q *captureQueue) all() []*model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*model.Job(nil), q.jobs...)
}

func TestRetryPolicyDelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		BaseDelay: 30 * time.Second,
		MaxDelay:  30 * time.Minute,
		Jitter:    0, // deterministic for the assertion
	}

	var prev time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 30*time.Minute, "attempt %d", attempt)
		prev = d
	}

	assert.Equal(t, 30*time.Second, p.Delay(0))
	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 30*time.Minute, p.Delay(9))
}

func relayJob(t *testing.T, url string, maxAttempts int) *model.Job {
	t.Helper()
	job, err := queue.NewJob(model.JobWebhookRelay, &model.WebhookRelayPayload{
		URL:  url,
		Body: json.RawMessage(`{"event":"test"}`),
	})
	require.NoError(t, err)
	job.MaxAttempts = maxAttempts
	return job
}

func TestRelaySuccessDoesNotReschedule(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := &captureQueue{}
	deadLetters := store.NewMemoryDeadLetterStore()
	r := NewWebhookRelayRunner(q, deadLetters, DefaultRetryPolicy(), logger.NewNop())

	err := r.Handle(context.Background(), relayJob(t, srv.URL, 5))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Empty(t, q.all())

	letters, err := deadLetters.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestRelayFailureReschedulesWithBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	q := &captureQueue{}
	deadLetters := store.NewMemoryDeadLetterStore()
	r := NewWebhookRelayRunner(q, deadLetters, RetryPolicy{
		BaseDelay: 30 * time.Second,
		MaxDelay:  30 * time.Minute,
	}, logger.NewNop())
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	err := r.Handle(context.Background(), relayJob(t, srv.URL, 5))
	require.NoError(t, err)

	jobs := q.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].AttemptCount)
	assert.Equal(t, now.Add(30*time.Second), jobs[0].ScheduledAt)

	letters, err := deadLetters.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestRelayExhaustionDeadLettersWithoutReschedule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := &captureQueue{}
	deadLetters := store.NewMemoryDeadLetterStore()
	r := NewWebhookRelayRunner(q, deadLetters, DefaultRetryPolicy(), logger.NewNop())

	job := relayJob(t, srv.URL, 2)
	job.AttemptCount = 1 // one failure already recorded

	err := r.Handle(context.Background(), job)
	require.NoError(t, err)

	assert.Empty(t, q.all())

	letters, err := deadLetters.List(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, job.ID, letters[0].Job.ID)
	assert.Contains(t, letters[0].LastError, "500")
	assert.Nil(t, letters[0].ReplayedAt)
}

func TestRelayUndecodablePayloadDeadLettersDirectly(t *testing.T) {
	q := &captureQueue{}
	deadLetters := store.NewMemoryDeadLetterStore()
	r := NewWebhookRelayRunner(q, deadLetters, DefaultRetryPolicy(), logger.NewNop())

	job := &model.Job{
		ID:          "bad-1",
		Type:        model.JobWebhookRelay,
		Payload:     json.RawMessage(`{not json`),
		MaxAttempts: 5,
	}

	require.NoError(t, r.Handle(context.Background(), job))

	assert.Empty(t, q.all())
	letters, err := deadLetters.List(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 1)
}
