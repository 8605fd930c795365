package agent

import "sync"

// chatLocks serialises message processing per chat. Two concurrent turns on
// the same chat would interleave history reads and writes; turns on
// different chats proceed in parallel.
//
// Mutexes are kept for the life of the process, one per chat id seen. The
// map grows with the number of distinct chats, which stays small for a
// single-operator gateway; entries are never reaped because a reaped mutex
// could be re-created while a turn still holds the old one.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: map[string]*sync.Mutex{}}
}

// acquire locks the mutex for chatID and returns its unlock func.
func (c *chatLocks) acquire(chatID string) func() {
	c.mu.Lock()
	l, ok := c.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[chatID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
