// Package membership memoizes positive channel-membership verdicts.
//
// Only admissions are stored. A denied user has no entry, so joining the
// channel takes effect on the very next check.
package membership

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTTL  = 5 * time.Minute
	DefaultSize = 500
)

// Entry is a cached verdict for one user.
type Entry struct {
	UserID    int64
	Admitted  bool
	ExpiresAt time.Time
}

// Cache is a bounded LRU of admitted users with a fixed TTL.
type Cache struct {
	lru *expirable.LRU[int64, Entry]
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache holding at most size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru: expirable.NewLRU[int64, Entry](size, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the live entry for userID. Absence means the caller must re-check.
func (c *Cache) Get(userID int64) (Entry, bool) {
	e, ok := c.lru.Get(userID)
	if !ok {
		return Entry{}, false
	}
	// the LRU reaps lazily; never hand out an entry past its own deadline
	if !c.now().Before(e.ExpiresAt) {
		c.lru.Remove(userID)
		return Entry{}, false
	}
	return e, true
}

// Admit records a positive verdict valid for the cache TTL.
func (c *Cache) Admit(userID int64) Entry {
	e := Entry{
		UserID:    userID,
		Admitted:  true,
		ExpiresAt: c.now().Add(c.ttl),
	}
	c.lru.Add(userID, e)
	return e
}

// Invalidate drops any entry for userID.
func (c *Cache) Invalidate(userID int64) {
	c.lru.Remove(userID)
}

// Purge drops every entry, e.g. after the required channel changes.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len reports the number of entries currently held.
func (c *Cache) Len() int {
	return c.lru.Len()
}
