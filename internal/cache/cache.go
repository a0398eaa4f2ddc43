// Package cache implements the Result Cache (spec.md §4.8): a
// fingerprint-keyed map from a canonicalized plan to its materialized
// result, with dependency-set invalidation, LRU+TTL eviction, and
// single-flight fill so concurrent callers racing on the same
// fingerprint only execute the underlying query once.
//
// Grounded on the teacher's pkg/resource/infrastructure/
// cache.QueryCache (map[string]*CacheEntry, TTL expiry, a size-bounded
// evict()), generalized two ways SPEC_FULL.md's §4.8 requires and the
// teacher's flat query-cache does not:
//   - Invalidate keys by a structured plan.TableRef dependency set
//     instead of a substring match over raw query text (the teacher's
//     util.ContainsTable has no equivalent of internal/plan.Federated's
//     Dependencies list to consult).
//   - True LRU ordering via container/list, grounded on the teacher's
//     pkg/resource/infrastructure/pool.ConnectionPool, which already
//     keeps a container/list of idle connections it trims from the
//     back on an analogous capacity check.
//
// Single-flight admission (golang.org/x/sync/singleflight) has no
// teacher equivalent — the teacher's QueryCache.Get/Set race freely
// under concurrent callers with the same query string, letting two
// callers both execute on a miss. singleflight is the same
// golang.org/x/sync module already used by internal/exec's adaptive
// mode, so no new dependency is introduced.
package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/datapunk/lakequery/internal/exec"
	"github.com/datapunk/lakequery/internal/plan"
)

// entry is one cached result plus the bookkeeping evict() and TTL
// expiry need, mirroring the teacher's CacheEntry fields.
type entry struct {
	result    *exec.Result
	deps      map[plan.TableRef]struct{}
	createdAt time.Time
	expiresAt time.Time
	hits      int64
	elem      *list.Element // this entry's node in the LRU list
}

// Cache is a concurrency-safe, size-bounded, TTL-expiring result cache
// keyed by plan fingerprint (internal/plan.Fingerprint).
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	group   singleflight.Group
}

// New builds a Cache, mirroring the teacher's
// NewQueryCacheWithConfig(maxSize, ttl).
func New(maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached result for fingerprint, if present and not
// expired, promoting it to most-recently-used.
func (c *Cache) Get(fingerprint string) (*exec.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(fingerprint)
		return nil, false
	}
	e.hits++
	c.order.MoveToFront(e.elem)
	return e.result, true
}

// Put inserts result under fingerprint with the given dependency set,
// evicting the least-recently-used entry first if the cache is full.
func (c *Cache) Put(fingerprint string, result *exec.Result, deps []plan.TableRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[fingerprint]; ok {
		c.order.Remove(existing.elem)
		delete(c.entries, fingerprint)
	}
	for len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}

	depSet := make(map[plan.TableRef]struct{}, len(deps))
	for _, d := range deps {
		depSet[d] = struct{}{}
	}

	now := time.Now()
	e := &entry{
		result:    result,
		deps:      depSet,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	e.elem = c.order.PushFront(fingerprint)
	c.entries[fingerprint] = e
}

// GetOrFill returns the cached result for fingerprint if present,
// otherwise calls fill exactly once even if multiple goroutines call
// GetOrFill with the same fingerprint concurrently, caching and
// returning its result under deps.
func (c *Cache) GetOrFill(fingerprint string, deps []plan.TableRef, fill func() (*exec.Result, error)) (*exec.Result, error) {
	if result, ok := c.Get(fingerprint); ok {
		return result, nil
	}
	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		if result, ok := c.Get(fingerprint); ok {
			return result, nil
		}
		result, err := fill()
		if err != nil {
			return nil, err
		}
		c.Put(fingerprint, result, deps)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*exec.Result), nil
}

// Invalidate drops every cached entry whose dependency set includes
// ref, the structured replacement for the teacher's
// Invalidate(tableName string) substring scan.
func (c *Cache) Invalidate(ref plan.TableRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fingerprint, e := range c.entries {
		if _, ok := e.deps[ref]; ok {
			c.removeLocked(fingerprint)
		}
	}
}

// InvalidateSource drops every cached entry depending on any table at
// source, for use when an adapter reconnects or a source-wide DDL
// event is observed.
func (c *Cache) InvalidateSource(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fingerprint, e := range c.entries {
		for d := range e.deps {
			if d.Source == source {
				c.removeLocked(fingerprint)
				break
			}
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order.Init()
}

// Stats mirrors the teacher's QueryCache.Stats shape.
type Stats struct {
	Size      int
	MaxSize   int
	TTL       time.Duration
	TotalHits int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.entries {
		total += e.hits
	}
	return Stats{Size: len(c.entries), MaxSize: c.maxSize, TTL: c.ttl, TotalHits: total}
}

// removeLocked deletes an entry; callers must hold c.mu.
func (c *Cache) removeLocked(fingerprint string) {
	if e, ok := c.entries[fingerprint]; ok {
		c.order.Remove(e.elem)
		delete(c.entries, fingerprint)
	}
}

// evictLRULocked drops the least-recently-used entry; callers must
// hold c.mu.
func (c *Cache) evictLRULocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	fingerprint := back.Value.(string)
	c.removeLocked(fingerprint)
}
