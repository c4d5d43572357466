package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/metrics"
)

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	setHits int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setHits++
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

type countingOracle struct {
	calls int
	fn    func(q Query) (Ranking, error)
}

func (o *countingOracle) CheckRank(_ context.Context, q Query) (Ranking, error) {
	o.calls++
	return o.fn(q)
}

func TestCached_HitAfterMiss(t *testing.T) {
	next := &countingOracle{fn: func(q Query) (Ranking, error) {
		return Ranking{Rank: 3, Competitors: []string{"A", "B"}}, nil
	}}
	cache := newMemCache()
	rec := metrics.New()
	c := NewCached(next, cache, time.Hour, WithCacheMetrics(rec))

	q := Query{Keyword: "Dentist ", Lat: 37.5, Lng: 127.0, TargetID: "place-1"}
	first, err := c.CheckRank(context.Background(), q)
	require.NoError(t, err)

	q.Keyword = "dentist"
	second, err := c.CheckRank(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, time.Hour, cache.ttls[CacheKey(q)])

	n, err := testutil.GatherAndCount(rec.Registry(), "rankgrid_cache_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one miss series and one hit series")
}

func TestCached_FailuresNotCached(t *testing.T) {
	next := &countingOracle{fn: func(q Query) (Ranking, error) {
		return Ranking{}, NewError(KindTimeout, errors.New("slow"))
	}}
	cache := newMemCache()
	c := NewCached(next, cache, time.Hour)

	for range 2 {
		_, err := c.CheckRank(context.Background(), Query{Keyword: "k", TargetID: "t"})
		assert.Equal(t, KindTimeout, KindOf(err))
	}
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, cache.setHits)
}

func TestCached_CacheErrorsFallThrough(t *testing.T) {
	next := &countingOracle{fn: func(q Query) (Ranking, error) {
		return Ranking{Rank: 1, Competitors: []string{}}, nil
	}}
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	c := NewCached(next, cache, time.Minute)

	r, err := c.CheckRank(context.Background(), Query{Keyword: "k", TargetID: "t"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Rank)
	assert.Equal(t, 1, next.calls)
}

func TestCacheKey_RoundsCoordinates(t *testing.T) {
	a := CacheKey(Query{Keyword: "pizza", Lat: 37.50000001, Lng: 127.0, TargetID: "t"})
	b := CacheKey(Query{Keyword: "PIZZA", Lat: 37.5, Lng: 127.00000004, TargetID: "t"})
	assert.Equal(t, a, b)

	c := CacheKey(Query{Keyword: "pizza", Lat: 37.5, Lng: 127.0, TargetID: "u"})
	assert.NotEqual(t, a, c)
}
