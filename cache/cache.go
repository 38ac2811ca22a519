package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/sleuth/logging"
)

// Entry is one cached value with its own time to live.
type Entry struct {
	Key        string
	Value      any
	CreatedAt  time.Time
	TTL        time.Duration
	LastAccess time.Time
}

// Expired reports whether the entry may no longer be served at now.
// A non-positive TTL expires immediately.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return !now.Before(e.CreatedAt.Add(e.TTL))
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Computes  int64 `json:"computes"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

// Options configure a Cache.
type Options struct {
	// Capacity bounds the number of live entries. Must be positive.
	Capacity int
	// Now returns the current time. Tests replace it with a fake clock.
	Now func() time.Time
	// Logger receives cache events.
	Logger logging.Logger
}

// Cache is a concurrency-safe LRU cache with per-entry TTL and single-flight computation.
type Cache struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[string, *Entry]
	group singleflight.Group
	opts  Options
	stats Stats
}

// DefaultCapacity is used when Options.Capacity is not positive.
const DefaultCapacity = 512

// New creates an empty cache.
func New(optFns ...func(o *Options)) *Cache {
	opts := Options{
		Capacity: DefaultCapacity,
		Now:      time.Now,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	// NewLRU only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[string, *Entry](opts.Capacity, nil)

	return &Cache{lru: lru, opts: opts}
}

// Get returns the live value stored under key. Expired entries are removed and reported as misses.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	now := c.opts.Now()
	if e.Expired(now) {
		c.lru.Remove(key)
		c.stats.Expired++
		c.stats.Misses++
		return nil, false
	}

	e.LastAccess = now
	c.stats.Hits++

	return e.Value, true
}

// Put stores value under key for ttl. With a non-positive ttl the entry is
// recorded but never served.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	c.addLocked(&Entry{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		TTL:        ttl,
		LastAccess: now,
	})
}

func (c *Cache) addLocked(e *Entry) {
	if c.lru.Len() >= c.opts.Capacity && !c.lru.Contains(e.Key) {
		c.purgeExpiredLocked(c.opts.Now())
	}

	if evicted := c.lru.Add(e.Key, e); evicted {
		c.stats.Evictions++
		c.opts.Logger.Debug("cache.evict", "capacity", c.opts.Capacity)
	}
}

func (c *Cache) purgeExpiredLocked(now time.Time) int {
	removed := 0
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if ok && e.Expired(now) {
			c.lru.Remove(k)
			removed++
		}
	}
	c.stats.Expired += int64(removed)
	return removed
}

// GetOrCompute returns the cached value for key or runs compute exactly once
// across concurrent callers. hit is true when compute was not run on behalf of
// this caller. Errors from compute are returned to every waiter and not cached.
// A waiter whose own context is still live recomputes when the flight it
// joined was cancelled by the caller that started it.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	key string,
	ttl time.Duration,
	compute func(ctx context.Context) (any, error),
) (value any, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	for {
		computed := false
		ch := c.group.DoChan(key, func() (any, error) {
			// A previous flight may have populated the key between Get and DoChan.
			if v, ok := c.lookup(key); ok {
				return v, nil
			}

			computed = true

			c.mu.Lock()
			c.stats.Computes++
			c.mu.Unlock()

			v, err := compute(ctx)
			if err != nil {
				return nil, err
			}

			c.Put(key, v, ttl)

			return v, nil
		})

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res := <-ch:
			// computed is only set inside this caller's flight.
			if res.Err != nil {
				if !computed && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, false, res.Err
			}
			return res.Val, !computed, nil
		}
	}
}

// lookup is Get without touching the hit and miss counters.
func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	now := c.opts.Now()
	if e.Expired(now) {
		return nil, false
	}
	e.LastAccess = now

	return e.Value, true
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
}

// Purge removes all expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.purgeExpiredLocked(c.opts.Now())
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
}

// Len returns the number of stored entries, including ones not yet found expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.lru.Len()
	s.Capacity = c.opts.Capacity

	return s
}

// Snapshot returns copies of all live entries ordered from least to most recently used.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	keys := c.lru.Keys() // oldest first

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e, ok := c.lru.Peek(k)
		if !ok || e.Expired(now) {
			continue
		}
		out = append(out, *e)
	}

	return out
}

// Save writes every live entry to store.
func (c *Cache) Save(ctx context.Context, store Store) error {
	entries := c.Snapshot()

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			c.opts.Logger.Warn("cache.save.skip", "key", e.Key, "error", err)
			continue
		}
		records = append(records, Record{
			Key:        e.Key,
			Value:      raw,
			CreatedAt:  e.CreatedAt,
			TTLSeconds: ttlSeconds(e.TTL),
			LastAccess: e.LastAccess,
		})
	}

	if err := store.Save(ctx, records); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}

	c.opts.Logger.Debug("cache.save", "entries", len(records))

	return nil
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Second - 1) / time.Second)
}

// Load merges the live records of store into the cache. Expired records are
// skipped. Values are decoded into generic JSON types.
func (c *Cache) Load(ctx context.Context, store Store) (int, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cache: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastAccess.Before(records[j].LastAccess)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	loaded := 0

	for _, r := range records {
		e := &Entry{
			Key:        r.Key,
			CreatedAt:  r.CreatedAt,
			TTL:        time.Duration(r.TTLSeconds) * time.Second,
			LastAccess: r.LastAccess,
		}
		if e.Expired(now) {
			continue
		}

		var v any
		if err := json.Unmarshal(r.Value, &v); err != nil {
			c.opts.Logger.Warn("cache.load.skip", "key", r.Key, "error", err)
			continue
		}
		e.Value = v

		c.addLocked(e)
		loaded++
	}

	c.opts.Logger.Debug("cache.load", "entries", loaded, "records", len(records))

	return loaded, nil
}
