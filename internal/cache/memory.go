package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used by tests and single-node
// deployments without Redis. Entries expire lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	counts  map[string]counterEntry
	now     func() time.Time
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		counts:  make(map[string]counterEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	c.entries[key] = memoryEntry{value: buf, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	buf := make([]byte, len(entry.value))
	copy(buf, entry.value)
	return buf, true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.Set(ctx, JobStatusKey(jobID), []byte(status), ttl)
}

func (c *MemoryCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, found, err := c.Get(ctx, JobStatusKey(jobID))
	if err != nil || !found {
		return "", false, err
	}
	return string(val), true, nil
}

func (c *MemoryCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.counts[key]
	if !ok || !entry.expiresAt.After(c.now()) {
		entry = counterEntry{value: 0, expiresAt: c.now().Add(expiry)}
	}
	entry.value++
	c.counts[key] = entry
	return entry.value, nil
}

// Compile-time check that MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
