package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock, capacity int) *Cache {
	return New(func(o *Options) {
		o.Capacity = capacity
		o.Now = clock.Now
	})
}

func TestCache_SetGet(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 4)

	c.Put("a", "alpha", time.Minute)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	s := c.Stats()
	assert.EqualValues(t, 1, s.Hits)
	assert.EqualValues(t, 1, s.Misses)
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, 4, s.Capacity)
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 4)

	c.Put("a", 1, time.Minute)

	clock.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry expires exactly at createdAt+ttl")
	assert.Equal(t, 0, c.Len())
}

func TestCache_ZeroTTLNeverServed(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 4)

	c.Put("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("b", 1, -time.Second)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 2)

	c.Put("a", 1, time.Hour)
	c.Put("b", 2, time.Hour)

	// Touch a so b becomes least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3, time.Hour)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	assert.Equal(t, 2, c.Len())
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestCache_ExpiredPurgedBeforeEviction(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 2)

	c.Put("short", 1, time.Second)
	c.Put("long", 2, time.Hour)
	clock.Advance(2 * time.Second)

	c.Put("new", 3, time.Hour)

	_, ok := c.Get("long")
	assert.True(t, ok, "live entry survives when an expired one can be dropped")
	assert.EqualValues(t, 0, c.Stats().Evictions)
}

func TestCache_GetOrCompute_SingleFlight(t *testing.T) {
	c := New()

	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	const workers = 16

	var (
		wg   sync.WaitGroup
		hits atomic.Int32
	)

	started := make(chan struct{}, workers)
	results := make([]any, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			v, hit, err := c.GetOrCompute(context.Background(), "k", time.Hour, compute)
			assert.NoError(t, err)
			if hit {
				hits.Add(1)
			}
			results[i] = v
		}(i)
	}

	for i := 0; i < workers; i++ {
		<-started
	}
	// Give the goroutines a moment to join the flight.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "compute runs exactly once")
	assert.EqualValues(t, workers-1, hits.Load())
	for _, v := range results {
		assert.Equal(t, "value", v)
	}

	// Subsequent lookups are plain hits.
	v, hit, err := c.GetOrCompute(context.Background(), "k", time.Hour, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "value", v)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCache_GetOrCompute_ErrorNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")

	calls := 0
	failing := func(context.Context) (any, error) {
		calls++
		return nil, boom
	}

	_, _, err := c.GetOrCompute(context.Background(), "k", time.Hour, failing)
	assert.ErrorIs(t, err, boom)

	_, _, err = c.GetOrCompute(context.Background(), "k", time.Hour, failing)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetOrCompute_ContextCancelled(t *testing.T) {
	c := New()

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := c.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (any, error) {
		<-block
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache_GetOrCompute_WaiterOutlivesCancelledLeader(t *testing.T) {
	c := New()

	var calls atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})

	compute := func(ctx context.Context) (any, error) {
		calls.Add(1)
		entered <- struct{}{}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return "value", nil
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(leaderCtx, "k", time.Hour, compute)
		leaderErr <- err
	}()
	<-entered

	type outcome struct {
		v   any
		hit bool
		err error
	}
	waiter := make(chan outcome, 1)
	go func() {
		v, hit, err := c.GetOrCompute(context.Background(), "k", time.Hour, compute)
		waiter <- outcome{v, hit, err}
	}()

	// Give the waiter a moment to join the flight.
	time.Sleep(20 * time.Millisecond)
	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	got := <-waiter

	require.NoError(t, got.err)
	assert.Equal(t, "value", got.v)
	assert.False(t, got.hit)
	assert.EqualValues(t, 2, calls.Load())

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestCache_GetOrCompute_CountsOneMissPerLookup(t *testing.T) {
	c := New()
	compute := func(context.Context) (any, error) { return 42, nil }

	_, hit, err := c.GetOrCompute(context.Background(), "k", time.Hour, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	st := c.Stats()
	assert.EqualValues(t, 1, st.Misses)
	assert.EqualValues(t, 0, st.Hits)
	assert.EqualValues(t, 1, st.Computes)

	_, hit, err = c.GetOrCompute(context.Background(), "k", time.Hour, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	st = c.Stats()
	assert.EqualValues(t, 1, st.Misses)
	assert.EqualValues(t, 1, st.Hits)
}

func TestCache_Persistence(t *testing.T) {
	newStores := map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(filepath.Join(t.TempDir(), "cache.json"))
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range newStores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()

			clock := newFakeClock()
			c := newTestCache(clock, 8)

			c.Put("str", "hello", time.Hour)
			c.Put("obj", map[string]any{"files": []any{"a.go", "b.go"}, "n": 2}, time.Hour)
			c.Put("zero", "never", 0)
			c.Put("short", "soon", time.Minute)

			require.NoError(t, c.Save(context.Background(), store))

			clock.Advance(2 * time.Minute)

			reloaded := newTestCache(clock, 8)
			n, err := reloaded.Load(context.Background(), store)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			v, ok := reloaded.Get("str")
			assert.True(t, ok)
			assert.Equal(t, "hello", v)

			v, ok = reloaded.Get("obj")
			require.True(t, ok)
			assert.Equal(t, map[string]any{"files": []any{"a.go", "b.go"}, "n": float64(2)}, v)

			_, ok = reloaded.Get("zero")
			assert.False(t, ok, "ttl=0 entries are never served after reload")

			_, ok = reloaded.Get("short")
			assert.False(t, ok, "entries expired while persisted are skipped")
		})
	}
}

func TestCache_PersistedTTLInWholeSeconds(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "cache.json")
	store := NewFileStore(path)

	c := newTestCache(clock, 4)
	c.Put("hour", "h", time.Hour)
	c.Put("sub", "s", 1500*time.Millisecond)
	require.NoError(t, c.Save(context.Background(), store))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ttl_seconds": 3600,`)
	assert.Contains(t, string(data), `"ttl_seconds": 2,`)

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	ttls := map[string]int64{}
	for _, r := range records {
		ttls[r.Key] = r.TTLSeconds
	}
	assert.Equal(t, map[string]int64{"hour": 3600, "sub": 2}, ttls)

	clock.Advance(time.Second)
	reloaded := newTestCache(clock, 4)
	n, err := reloaded.Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "sub-second remainders round up")
}

func TestCache_LoadPreservesRecency(t *testing.T) {
	clock := newFakeClock()
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"))

	c := newTestCache(clock, 3)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), i, time.Hour)
		clock.Advance(time.Second)
	}
	_, _ = c.Get("k0") // k0 becomes most recent
	require.NoError(t, c.Save(context.Background(), store))

	reloaded := newTestCache(clock, 3)
	_, err := reloaded.Load(context.Background(), store)
	require.NoError(t, err)

	reloaded.Put("k3", 3, time.Hour)

	_, ok := reloaded.Get("k1")
	assert.False(t, ok, "oldest access is evicted first after reload")
	_, ok = reloaded.Get("k0")
	assert.True(t, ok)
}

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope", "cache.json"))

	records, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestCache_Purge(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 4)

	c.Put("a", 1, time.Second)
	c.Put("b", 2, time.Hour)
	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
