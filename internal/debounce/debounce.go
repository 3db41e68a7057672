// Package debounce suppresses identical pushes fired in quick succession,
// e.g. a client retry storm re-sending the same message. It is a
// process-local, advisory optimization: the durable at-most-once gate is the
// idempotency ledger, this cache only guards against retries of the same
// logical send.
package debounce

import (
	"sync"
	"time"

	"hooked-notifications-worker/internal/constants"
)

type entry struct {
	at      time.Time
	content string
}

// Cache is a time-windowed map from (recipient, type, source) to the last
// content sent. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[string]entry
}

func New(window time.Duration, maxEntries int) *Cache {
	return NewWithClock(window, maxEntries, time.Now)
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(window time.Duration, maxEntries int, now func() time.Time) *Cache {
	return &Cache{
		window:     window,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[string]entry),
	}
}

// ShouldSkip reports whether a push with this content should be suppressed.
//
// Match notifications are single-shot per pair, so any repeat within the
// window is noise and is skipped. For every other type a repeat is skipped
// only when the content is exactly the same - a second, different message
// from the same sender must go through.
//
// Every call that does not skip records the new content.
func (c *Cache) ShouldSkip(recipient, jobType, sourceId, content string) bool {
	key := recipient + "|" + jobType
	if jobType == constants.JobTypeMessage && sourceId != "" {
		key += "|" + sourceId
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok && now.Sub(e.at) < c.window {
		if jobType == constants.JobTypeMatch {
			return true
		}
		if e.content == content {
			return true
		}
	}

	c.entries[key] = entry{at: now, content: content}
	if len(c.entries) > c.maxEntries {
		c.purgeLocked(now)
	}
	return false
}

// purgeLocked drops entries older than twice the window. Best-effort memory
// cap, not a correctness requirement.
func (c *Cache) purgeLocked(now time.Time) {
	cutoff := now.Add(-2 * c.window)
	for k, e := range c.entries {
		if e.at.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
