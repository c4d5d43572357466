package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/metrics"
)

// Cache is the byte store Cached reads through. ok is false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached serves repeated queries from a Cache. Only successful rankings are
// stored; cache failures fall through to the wrapped oracle.
type Cached struct {
	next    Oracle
	cache   Cache
	ttl     time.Duration
	logger  logging.Logger
	metrics *metrics.Recorder
}

type CachedOption func(*Cached)

func WithCacheLogger(l logging.Logger) CachedOption {
	return func(c *Cached) { c.logger = l }
}

func WithCacheMetrics(m *metrics.Recorder) CachedOption {
	return func(c *Cached) { c.metrics = m }
}

func NewCached(next Oracle, cache Cache, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey identifies a query. Coordinates are rounded to 1e-6 degrees and
// the keyword is case-folded.
func CacheKey(q Query) string {
	kw := strings.ToLower(strings.TrimSpace(q.Keyword))
	return fmt.Sprintf("rank:%s:%s:%.6f:%.6f", url.QueryEscape(kw), url.QueryEscape(q.TargetID), q.Lat, q.Lng)
}

func (c *Cached) CheckRank(ctx context.Context, q Query) (Ranking, error) {
	key := CacheKey(q)

	data, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.ObserveCache(metrics.CacheError)
		c.logger.Warn("oracle cache read failed", logging.String("key", key), logging.Err(err))
	case ok:
		var r Ranking
		if jerr := json.Unmarshal(data, &r); jerr == nil {
			c.metrics.ObserveCache(metrics.CacheHit)
			if r.Competitors == nil {
				r.Competitors = []string{}
			}
			return r, nil
		}
		c.metrics.ObserveCache(metrics.CacheError)
		c.logger.Warn("discarding undecodable cache entry", logging.String("key", key))
	default:
		c.metrics.ObserveCache(metrics.CacheMiss)
	}

	r, err := c.next.CheckRank(ctx, q)
	if err != nil {
		return r, err
	}

	if data, err := json.Marshal(r); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("oracle cache write failed", logging.String("key", key), logging.Err(err))
		}
	}
	return r, nil
}
