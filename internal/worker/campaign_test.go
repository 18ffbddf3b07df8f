package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/provider"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []time.Time

	// onSend runs after each accepted send, outside the lock.
	onSend func(n int)
}

func (s *fakeSender) SendText(ctx context.Context, ch *model.Channel, to, body string) (string, error) {
	s.mu.Lock()
	s.sends = append(s.sends, time.Now())
	n := len(s.sends)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(n)
	}
	return fmt.Sprintf("ext-%d", n), nil
}

func (s *fakeSender) SendMedia(ctx context.Context, ch *model.Channel, to, mediaType, url, caption string) (string, error) {
	return s.SendText(ctx, ch, to, caption)
}

func (s *fakeSender) SendTemplate(ctx context.Context, ch *model.Channel, to, templateName, language string, params map[string]string) (string, error) {
	return s.SendText(ctx, ch, to, templateName)
}

func (s *fakeSender) times() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.sends...)
}

type campaignFixture struct {
	runner    *CampaignRunner
	campaigns *store.MemoryCampaignStore
	sender    *fakeSender
	campaign  *model.Campaign
}

func newCampaignFixture(t *testing.T, contactCount int, mps float64) *campaignFixture {
	t.Helper()
	ctx := context.Background()

	contacts := store.NewMemoryContactStore()
	conversations := store.NewMemoryConversationStore()
	messages := store.NewMemoryMessageStore()
	channels := store.NewMemoryChannelStore()
	campaigns := store.NewMemoryCampaignStore()

	channel := &model.Channel{ID: "ch-1", TenantID: "t1", Provider: model.ProviderBridge, ProviderChannelID: "inst-1"}
	require.NoError(t, channels.Create(ctx, channel))

	sender := &fakeSender{}
	senders := provider.NewRegistry()
	senders.Register(model.ProviderBridge, sender)

	var contactIDs []string
	for i := 0; i < contactCount; i++ {
		c, _, err := contacts.UpsertByExternalID(ctx, channel.ID, fmt.Sprintf("55119999%05d", i), "")
		require.NoError(t, err)
		contactIDs = append(contactIDs, c.ID)
	}

	campaign := &model.Campaign{
		TenantID:          "t1",
		ChannelID:         channel.ID,
		Name:              "launch",
		Status:            model.CampaignScheduled,
		Body:              "big news!",
		MessagesPerSecond: mps,
		ContactIDs:        contactIDs,
	}
	require.NoError(t, campaigns.Create(ctx, campaign))

	outbound := NewOutbound(messages, conversations, contacts, channels, senders, logger.NewNop())
	runner := NewCampaignRunner(campaigns, contacts, messages, outbound, logger.NewNop())

	return &campaignFixture{
		runner:    runner,
		campaigns: campaigns,
		sender:    sender,
		campaign:  campaign,
	}
}

func TestCampaignPacesSendsByConfiguredRate(t *testing.T) {
	f := newCampaignFixture(t, 4, 2.0)

	start := time.Now()
	require.NoError(t, f.runner.Run(context.Background(), f.campaign.ID))
	elapsed := time.Since(start)

	times := f.sender.times()
	require.Len(t, times, 4)
	// Burst of 1 at 2 msg/s: three waits of ~500ms after the first send.
	assert.GreaterOrEqual(t, elapsed, 1200*time.Millisecond)

	c, err := f.campaigns.Get(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 4, c.SentCount)
	assert.Equal(t, 0, c.FailedCount)
	require.NotNil(t, c.FinishedAt)
}

func TestCampaignCancelMidRunStopsSending(t *testing.T) {
	f := newCampaignFixture(t, 6, 50.0)
	ctx := context.Background()

	f.sender.onSend = func(n int) {
		if n == 2 {
			require.NoError(t, f.campaigns.SetStatus(ctx, f.campaign.ID, model.CampaignCancelled))
		}
	}

	require.NoError(t, f.runner.Run(ctx, f.campaign.ID))

	assert.Len(t, f.sender.times(), 2)

	c, err := f.campaigns.Get(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCancelled, c.Status)
	assert.Equal(t, 2, c.SentCount)
}

func TestCampaignResumeSkipsAlreadySentContacts(t *testing.T) {
	f := newCampaignFixture(t, 5, 100.0)
	ctx := context.Background()

	f.sender.onSend = func(n int) {
		if n == 3 {
			require.NoError(t, f.campaigns.SetStatus(ctx, f.campaign.ID, model.CampaignPaused))
		}
	}
	require.NoError(t, f.runner.Run(ctx, f.campaign.ID))
	assert.Len(t, f.sender.times(), 3)

	// Resume: back to RUNNING, run again.
	f.sender.onSend = nil
	require.NoError(t, f.campaigns.SetStatus(ctx, f.campaign.ID, model.CampaignRunning))
	require.NoError(t, f.runner.Run(ctx, f.campaign.ID))

	assert.Len(t, f.sender.times(), 5)

	c, err := f.campaigns.Get(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 5, c.SentCount)

	// No contact was messaged twice.
	results, err := f.campaigns.Results(ctx, f.campaign.ID)
	require.NoError(t, err)
	seen := make(map[string]int)
	for _, r := range results {
		seen[r.ContactID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "contact %s", id)
	}
}

func TestCampaignNotRunnableIsSkipped(t *testing.T) {
	f := newCampaignFixture(t, 3, 100.0)
	ctx := context.Background()

	require.NoError(t, f.campaigns.SetStatus(ctx, f.campaign.ID, model.CampaignCancelled))
	require.NoError(t, f.runner.Run(ctx, f.campaign.ID))

	assert.Empty(t, f.sender.times())
}
