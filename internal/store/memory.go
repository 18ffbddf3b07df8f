package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// The in-memory implementations back development and tests; production
// swaps in the relational layer behind the same interfaces.

// MemoryContactStore is an in-memory ContactStore.
type MemoryContactStore struct {
	mu       sync.RWMutex
	contacts map[string]*model.Contact
	byKey    map[string]string // channelID+"\x00"+externalID -> id
}

// NewMemoryContactStore creates an empty contact store.
func NewMemoryContactStore() *MemoryContactStore {
	return &MemoryContactStore{
		contacts: make(map[string]*model.Contact),
		byKey:    make(map[string]string),
	}
}

func contactKey(channelID, externalID string) string {
	return channelID + "\x00" + externalID
}

// UpsertByExternalID implements ContactStore.
func (s *MemoryContactStore) UpsertByExternalID(ctx context.Context, channelID, externalID, name string) (*model.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[contactKey(channelID, externalID)]; ok {
		c := s.contacts[id]
		// Never overwrite a name that was already set; it may have
		// been corrected by a human.
		if c.Name == "" && name != "" {
			c.Name = name
			c.UpdatedAt = time.Now()
		}
		return cloneContact(c), false, nil
	}

	now := time.Now()
	c := &model.Contact{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ChannelID:  channelID,
		ExternalID: externalID,
		Name:       name,
		Stage:      model.StageNew,
		OptedIn:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.contacts[c.ID] = c
	s.byKey[contactKey(channelID, externalID)] = c.ID
	return cloneContact(c), true, nil
}

// Get implements ContactStore.
func (s *MemoryContactStore) Get(ctx context.Context, id string) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneContact(c), nil
}

// Update implements ContactStore.
func (s *MemoryContactStore) Update(ctx context.Context, contact *model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[contact.ID]; !ok {
		return ErrNotFound
	}
	cp := cloneContact(contact)
	cp.UpdatedAt = time.Now()
	s.contacts[contact.ID] = cp
	return nil
}

func cloneContact(c *model.Contact) *model.Contact {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	return &cp
}

// MemoryConversationStore is an in-memory ConversationStore.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
}

// NewMemoryConversationStore creates an empty conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{conversations: make(map[string]*model.Conversation)}
}

// FindActive implements ConversationStore.
func (s *MemoryConversationStore) FindActive(ctx context.Context, contactID, channelID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ContactID == contactID && c.ChannelID == channelID && c.IsActive() {
			return cloneConversation(c), nil
		}
	}
	return nil, ErrNotFound
}

// FindOrCreateActive implements ConversationStore.
func (s *MemoryConversationStore) FindOrCreateActive(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ContactID == conv.ContactID && c.ChannelID == conv.ChannelID && c.IsActive() {
			return cloneConversation(c), false, nil
		}
	}
	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.conversations[conv.ID] = cloneConversation(conv)
	return cloneConversation(conv), true, nil
}

// Create implements ConversationStore.
func (s *MemoryConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

// Get implements ConversationStore.
func (s *MemoryConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(c), nil
}

// Update implements ConversationStore.
func (s *MemoryConversationStore) Update(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		return ErrNotFound
	}
	cp := cloneConversation(conv)
	cp.UpdatedAt = time.Now()
	s.conversations[conv.ID] = cp
	return nil
}

// ReplaceFlowState implements ConversationStore.
func (s *MemoryConversationStore) ReplaceFlowState(ctx context.Context, conversationID string, state *model.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.FlowState = cloneFlowState(state)
	c.UpdatedAt = time.Now()
	return nil
}

// SetAIEnabled implements ConversationStore.
func (s *MemoryConversationStore) SetAIEnabled(ctx context.Context, conversationID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.AIEnabled = enabled
	if !enabled {
		c.FlowState = nil
	}
	c.UpdatedAt = time.Now()
	return nil
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.FlowState = cloneFlowState(c.FlowState)
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		cp.LastMessageAt = &t
	}
	return &cp
}

func cloneFlowState(st *model.FlowState) *model.FlowState {
	if st == nil {
		return nil
	}
	cp := *st
	if st.CurrentNodeID != nil {
		id := *st.CurrentNodeID
		cp.CurrentNodeID = &id
	}
	cp.Vars = make(map[string]string, len(st.Vars))
	for k, v := range st.Vars {
		cp.Vars[k] = v
	}
	cp.Options = append([]string(nil), st.Options...)
	return &cp
}

// MemoryMessageStore is an in-memory MessageStore.
type MemoryMessageStore struct {
	mu           sync.RWMutex
	messages     map[string]*model.Message
	byExternalID map[string]string
	order        []string // insertion order of message ids
}

// NewMemoryMessageStore creates an empty message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages:     make(map[string]*model.Message),
		byExternalID: make(map[string]string),
	}
}

// CreateIfAbsent implements MessageStore.
func (s *MemoryMessageStore) CreateIfAbsent(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ExternalID != "" {
		if _, ok := s.byExternalID[msg.ExternalID]; ok {
			return ErrDuplicate
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	if msg.ExternalID != "" {
		s.byExternalID[msg.ExternalID] = msg.ID
	}
	s.order = append(s.order, msg.ID)
	return nil
}

// Get implements MessageStore.
func (s *MemoryMessageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// GetByExternalID implements MessageStore.
func (s *MemoryMessageStore) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternalID[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.messages[id]
	return &cp, nil
}

// UpdateStatus implements MessageStore.
func (s *MemoryMessageStore) UpdateStatus(ctx context.Context, externalID string, status model.MessageStatus, errCode, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternalID[externalID]
	if !ok {
		return ErrNotFound
	}
	m := s.messages[id]
	m.Status = status
	m.ErrorCode = errCode
	m.ErrorMessage = errMsg
	return nil
}

// MarkSendResult implements MessageStore.
func (s *MemoryMessageStore) MarkSendResult(ctx context.Context, id, externalID string, status model.MessageStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	if externalID != "" {
		m.ExternalID = externalID
		s.byExternalID[externalID] = id
	}
	m.Status = status
	m.ErrorMessage = errMsg
	return nil
}

// ListRecent implements MessageStore.
func (s *MemoryMessageStore) ListRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// MemoryChannelStore is an in-memory ChannelStore.
type MemoryChannelStore struct {
	mu       sync.RWMutex
	channels map[string]*model.Channel
}

// NewMemoryChannelStore creates an empty channel store.
func NewMemoryChannelStore() *MemoryChannelStore {
	return &MemoryChannelStore{channels: make(map[string]*model.Channel)}
}

// Create implements ChannelStore.
func (s *MemoryChannelStore) Create(ctx context.Context, ch *model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.ID == "" {
		ch.ID = uuid.Must(uuid.NewV7()).String()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	cp := *ch
	s.channels[ch.ID] = &cp
	return nil
}

// Get implements ChannelStore.
func (s *MemoryChannelStore) Get(ctx context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

// GetByProviderChannelID implements ChannelStore.
func (s *MemoryChannelStore) GetByProviderChannelID(ctx context.Context, provider model.Provider, providerChannelID string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels {
		if ch.Provider == provider && ch.ProviderChannelID == providerChannelID {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// MemoryChatbotStore is an in-memory ChatbotStore.
type MemoryChatbotStore struct {
	mu   sync.RWMutex
	bots map[string]*model.Chatbot
}

// NewMemoryChatbotStore creates an empty chatbot store.
func NewMemoryChatbotStore() *MemoryChatbotStore {
	return &MemoryChatbotStore{bots: make(map[string]*model.Chatbot)}
}

// Create implements ChatbotStore.
func (s *MemoryChatbotStore) Create(ctx context.Context, bot *model.Chatbot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bot.ID == "" {
		bot.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now
	cp := *bot
	s.bots[bot.ID] = &cp
	return nil
}

// Get implements ChatbotStore.
func (s *MemoryChatbotStore) Get(ctx context.Context, id string) (*model.Chatbot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ResolveForTenant implements ChatbotStore. The default flag wins;
// otherwise the oldest active chatbot is used.
func (s *MemoryChatbotStore) ResolveForTenant(ctx context.Context, tenantID string) (*model.Chatbot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*model.Chatbot
	for _, b := range s.bots {
		if b.TenantID == tenantID && b.Active {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	for _, b := range active {
		if b.Default {
			cp := *b
			return &cp, nil
		}
	}
	cp := *active[0]
	return &cp, nil
}

// MemoryCampaignStore is an in-memory CampaignStore.
type MemoryCampaignStore struct {
	mu        sync.RWMutex
	campaigns map[string]*model.Campaign
	results   map[string][]model.CampaignResult
}

// NewMemoryCampaignStore creates an empty campaign store.
func NewMemoryCampaignStore() *MemoryCampaignStore {
	return &MemoryCampaignStore{
		campaigns: make(map[string]*model.Campaign),
		results:   make(map[string][]model.CampaignResult),
	}
}

// Create implements CampaignStore.
func (s *MemoryCampaignStore) Create(ctx context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	cp.ContactIDs = append([]string(nil), c.ContactIDs...)
	s.campaigns[c.ID] = &cp
	return nil
}

// Get implements CampaignStore.
func (s *MemoryCampaignStore) Get(ctx context.Context, id string) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.ContactIDs = append([]string(nil), c.ContactIDs...)
	return &cp, nil
}

// SetStatus implements CampaignStore.
func (s *MemoryCampaignStore) SetStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	now := time.Now()
	switch status {
	case model.CampaignRunning:
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	case model.CampaignCompleted, model.CampaignCancelled:
		c.FinishedAt = &now
	}
	return nil
}

// RecordResult implements CampaignStore.
func (s *MemoryCampaignStore) RecordResult(ctx context.Context, id string, res model.CampaignResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	s.results[id] = append(s.results[id], res)
	if res.Status == model.MessageStatusFailed {
		c.FailedCount++
	} else {
		c.SentCount++
	}
	return nil
}

// Results implements CampaignStore.
func (s *MemoryCampaignStore) Results(ctx context.Context, id string) ([]model.CampaignResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.CampaignResult(nil), s.results[id]...), nil
}

// MemoryScheduledMessageStore is an in-memory ScheduledMessageStore.
type MemoryScheduledMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*model.ScheduledMessage
}

// NewMemoryScheduledMessageStore creates an empty scheduled store.
func NewMemoryScheduledMessageStore() *MemoryScheduledMessageStore {
	return &MemoryScheduledMessageStore{messages: make(map[string]*model.ScheduledMessage)}
}

// Create implements ScheduledMessageStore.
func (s *MemoryScheduledMessageStore) Create(ctx context.Context, m *model.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = model.ScheduledPending
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

// Get implements ScheduledMessageStore.
func (s *MemoryScheduledMessageStore) Get(ctx context.Context, id string) (*model.ScheduledMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// DueBefore implements ScheduledMessageStore.
func (s *MemoryScheduledMessageStore) DueBefore(ctx context.Context, t time.Time) ([]model.ScheduledMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []model.ScheduledMessage
	for _, m := range s.messages {
		if m.Status == model.ScheduledPending && !m.SendAt.After(t) {
			due = append(due, *m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].SendAt.Before(due[j].SendAt) })
	return due, nil
}

// SetStatus implements ScheduledMessageStore.
func (s *MemoryScheduledMessageStore) SetStatus(ctx context.Context, id string, status model.ScheduledMessageStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	m.Error = errText
	return nil
}

// MemoryDeadLetterStore is an in-memory DeadLetterStore.
type MemoryDeadLetterStore struct {
	mu      sync.RWMutex
	letters map[string]*model.DeadLetter
}

// NewMemoryDeadLetterStore creates an empty dead-letter store.
func NewMemoryDeadLetterStore() *MemoryDeadLetterStore {
	return &MemoryDeadLetterStore{letters: make(map[string]*model.DeadLetter)}
}

// Add implements DeadLetterStore.
func (s *MemoryDeadLetterStore) Add(ctx context.Context, dl *model.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dl.ID == "" {
		dl.ID = uuid.Must(uuid.NewV7()).String()
	}
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}
	cp := *dl
	s.letters[dl.ID] = &cp
	return nil
}

// Get implements DeadLetterStore.
func (s *MemoryDeadLetterStore) Get(ctx context.Context, id string) (*model.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dl, ok := s.letters[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *dl
	return &cp, nil
}

// List implements DeadLetterStore.
func (s *MemoryDeadLetterStore) List(ctx context.Context) ([]model.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DeadLetter, 0, len(s.letters))
	for _, dl := range s.letters {
		out = append(out, *dl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.Before(out[j].FailedAt) })
	return out, nil
}

// MarkReplayed implements DeadLetterStore.
func (s *MemoryDeadLetterStore) MarkReplayed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl, ok := s.letters[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	dl.ReplayedAt = &now
	return nil
}

// PurgeBefore implements DeadLetterStore.
func (s *MemoryDeadLetterStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, dl := range s.letters {
		if dl.FailedAt.Before(cutoff) {
			delete(s.letters, id)
			n++
		}
	}
	return n, nil
}
