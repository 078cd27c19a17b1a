package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"imgsearch/internal/domain"
	"imgsearch/internal/port"
)

// QueryCache is an LRU cache of text query vectors with a TTL.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	vector    []float32
	timestamp time.Time
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func (c *QueryCache) Get(model, text string) ([]float32, bool) {
	key := cacheKey(model, text)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return entry.vector, true
}

func (c *QueryCache) Put(model, text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, text)
	entry := &cacheEntry{
		vector:    append([]float32(nil), vector...),
		timestamp: c.now(),
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedEncoder serves text inputs from a QueryCache and forwards
// everything else to the wrapped encoder.
type CachedEncoder struct {
	port.Encoder
	cache *QueryCache
}

func NewCachedEncoder(encoder port.Encoder, cache *QueryCache) *CachedEncoder {
	return &CachedEncoder{
		Encoder: encoder,
		cache:   cache,
	}
}

func (e *CachedEncoder) Encode(ctx context.Context, inputs []domain.Input) ([]domain.Encoded, error) {
	model := e.Encoder.ModelName()
	out := make([]domain.Encoded, len(inputs))

	var (
		misses []domain.Input
		slots  []int
	)
	for i, in := range inputs {
		if in.Kind == domain.InputText {
			if vec, hit := e.cache.Get(model, in.Text); hit {
				out[i].Vector = vec
				continue
			}
		}
		misses = append(misses, in)
		slots = append(slots, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	results, err := e.Encoder.Encode(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(results) != len(misses) {
		return nil, fmt.Errorf("%w: encoder returned %d results for %d inputs", domain.ErrEncode, len(results), len(misses))
	}
	for j, res := range results {
		i := slots[j]
		out[i] = res
		if inputs[i].Kind == domain.InputText && res.OK() {
			e.cache.Put(model, inputs[i].Text, res.Vector)
		}
	}
	return out, nil
}
