package embeddings

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cached wraps a Provider and memoizes query embeddings in an LRU with a
// per-entry TTL. Document embeddings pass through; ingestion sees each chunk
// once.
type Cached struct {
	Provider

	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*cacheEntry
	order    *list.List
	now      func() time.Time

	hits, misses uint64
}

type cacheEntry struct {
	key     string
	vector  []float32
	expires time.Time
	element *list.Element
}

// NewCached wraps p. A non-positive capacity defaults to 512 and a
// non-positive ttl to one minute.
func NewCached(p Provider, capacity int, ttl time.Duration) *Cached {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		Provider: p,
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*cacheEntry, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// EmbedQuery returns a cached vector when one is fresh, otherwise asks the
// wrapped provider. Failures are not cached.
func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.get(text); ok {
		return vec, nil
	}
	vec, err := c.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(text, vec)
	return vec, nil
}

// Stats returns cache hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops every cached vector.
func (c *Cached) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheEntry, c.capacity)
	c.order.Init()
}

func (c *Cached) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		if c.now().Before(ent.expires) {
			c.order.MoveToFront(ent.element)
			c.hits++
			return ent.vector, true
		}
		c.remove(ent)
	}
	c.misses++
	return nil, false
}

func (c *Cached) set(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		ent.vector = vec
		ent.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(ent.element)
		return
	}

	if len(c.items) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(c.items[oldest.Value.(string)])
		}
	}

	c.items[key] = &cacheEntry{
		key:     key,
		vector:  vec,
		expires: c.now().Add(c.ttl),
		element: c.order.PushFront(key),
	}
}

func (c *Cached) remove(ent *cacheEntry) {
	c.order.Remove(ent.element)
	delete(c.items, ent.key)
}
