package market

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache holds the last successful result of a fetch for a wall-clock TTL.
type Cache struct {
	mu        sync.RWMutex
	records   []Record
	fetchedAt time.Time
	valid     bool
	ttl       time.Duration
	now       func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns a copy of the cached records if they are younger than the TTL.
func (c *Cache) Get() ([]Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return copyRecords(c.records), true
}

func (c *Cache) Set(records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = copyRecords(records)
	c.fetchedAt = c.now()
	c.valid = true
}

// Invalidate drops the cached result.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = nil
	c.valid = false
}

func copyRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		if r.Change24h != nil {
			r.Change24h = ptr(*r.Change24h)
		}
		out[i] = r
	}
	return out
}

// memoFetcher serves a fetcher's results from a Cache. Failures are passed
// through and never stored.
type memoFetcher struct {
	next  Fetcher
	cache *Cache
}

// Memoize wraps f so that successful results are reused for ttl. A ttl of
// zero or less returns f unchanged.
func Memoize(f Fetcher, ttl time.Duration) Fetcher {
	if ttl <= 0 {
		return f
	}
	return &memoFetcher{next: f, cache: NewCache(ttl)}
}

// Invalidator is implemented by fetchers that hold cached results.
type Invalidator interface {
	Invalidate()
}

func (m *memoFetcher) Name() string { return m.next.Name() }

// Invalidate forces the next Fetch to go upstream.
func (m *memoFetcher) Invalidate() {
	m.cache.Invalidate()
	slog.Debug("market cache invalidated", "source", m.next.Name())
}

func (m *memoFetcher) Fetch(ctx context.Context) ([]Record, error) {
	if records, ok := m.cache.Get(); ok {
		slog.Debug("market cache hit", "source", m.next.Name(), "count", len(records))
		return records, nil
	}

	records, err := m.next.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	m.cache.Set(records)
	return records, nil
}
