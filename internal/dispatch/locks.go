package dispatch

import (
	"sync"
)

// conversationLocks serializes automation per conversation id. Two
// inbound messages arriving concurrently for the same conversation
// must not interleave their flow execution; flow state writes are a
// whole-object replace, so interleaving would lose updates.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the lock for a conversation and returns its unlock
// function. Entries are reference-counted so the map does not grow
// without bound.
func (c *conversationLocks) Lock(conversationID string) func() {
	c.mu.Lock()
	e, ok := c.locks[conversationID]
	if !ok {
		e = &lockEntry{}
		c.locks[conversationID] = e
	}
	e.refs++
	c.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		c.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}
