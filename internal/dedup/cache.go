package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/incident-service/internal/domain"
)

// Cache is the fast tier of the guard. Implementations expire entries on
// their own after a fixed retention window.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (domain.SubmissionRecord, bool, error)
	Put(ctx context.Context, record domain.SubmissionRecord) error
}

type cacheEntry struct {
	record    domain.SubmissionRecord
	expiresAt time.Time
}

// MemoryCache keeps submission records in a mutex-guarded map. Expired
// entries are dropped on read and by Sweep.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// Now is overridable in tests.
	Now func() time.Time
}

// NewMemoryCache creates a cache retaining records for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		Now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, fingerprint string) (domain.SubmissionRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return domain.SubmissionRecord{}, false, nil
	}
	if !c.Now().Before(entry.expiresAt) {
		delete(c.entries, fingerprint)
		return domain.SubmissionRecord{}, false, nil
	}
	return copyRecord(entry.record), true, nil
}

func (c *MemoryCache) Put(_ context.Context, record domain.SubmissionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[record.Fingerprint] = cacheEntry{
		record:    copyRecord(record),
		expiresAt: c.Now().Add(c.ttl),
	}
	return nil
}

// Sweep evicts expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.Now()
	removed := 0
	for fingerprint, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, fingerprint)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func copyRecord(r domain.SubmissionRecord) domain.SubmissionRecord {
	r.TicketNumbers = append([]string(nil), r.TicketNumbers...)
	return r
}

var _ Cache = (*MemoryCache)(nil)
