// Package dnscache is a thin, fail-soft façade over an external
// key/value store holding cached DNS responses. Every operation
// degrades to a no-op or a miss when the backend is unreachable; the
// resolver must keep serving traffic with the cache fully down.
package dnscache

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResponseTTL is the fixed TTL applied to every cached response,
// independent of the TTL fields inside the cached answer itself.
const ResponseTTL = 300 * time.Second

const (
	keyPrefix     = "dns:"
	keyQueryCount = "dns:query_count"
	keyHitCount   = "dns:hit_count"
	keyStartup    = "dns:startup"
)

// Client wraps a redis.Cmdable and tracks whether the backend is
// currently considered reachable. A failed call disables further
// calls until a background probe observes the backend again.
type Client struct {
	rdb      redis.Cmdable
	log      *slog.Logger
	ready    atomic.Bool
	disabled atomic.Bool
}

// New pings rdb once to establish the initial ready state, records
// the startup timestamp on success, and returns a Client that will
// keep working (degraded to no-ops) even if rdb later goes away.
func New(ctx context.Context, rdb redis.Cmdable, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{rdb: rdb, log: log}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		c.log.Warn("dnscache: backend unreachable at startup", slog.Any("error", err))
		c.disabled.Store(true)
		go c.recover()
		return c
	}

	c.ready.Store(true)
	writeCtx, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	if err := rdb.Set(writeCtx, keyStartup, time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		c.log.Warn("dnscache: failed to record startup timestamp", slog.Any("error", err))
	}
	return c
}

// Ready reports whether the backend accepted a liveness probe at
// startup. It does not reflect subsequent runtime failures; those are
// handled transparently by degrading individual operations.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

func (c *Client) disable() {
	if c.disabled.CompareAndSwap(false, true) {
		c.log.Warn("dnscache: backend disabled after error, probing for recovery")
		go c.recover()
	}
}

// recover polls PING with growing backoff until the backend answers,
// then clears the disabled flag.
func (c *Client) recover() {
	const maxBackoff = 30 * time.Second
	backoff := 500 * time.Millisecond
	for {
		time.Sleep(backoff)
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := c.rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			if backoff < maxBackoff {
				backoff += time.Duration(rand.Intn(1000))*time.Millisecond + 500*time.Millisecond
			} else {
				backoff = maxBackoff
			}
			continue
		}
		c.disabled.Store(false)
		c.log.Info("dnscache: backend recovered")
		return
	}
}

func cacheKey(domain string) string {
	return keyPrefix + domain
}

// Get returns the last cached response bytes for domain, or
// ok=false if absent, expired, or the backend is unavailable.
func (c *Client) Get(ctx context.Context, domain string) ([]byte, bool) {
	if c.disabled.Load() {
		return nil, false
	}
	s, err := c.rdb.Get(ctx, cacheKey(domain)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("dnscache: get failed", slog.String("domain", domain), slog.Any("error", err))
			c.disable()
		}
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		c.log.Warn("dnscache: corrupt cache value", slog.String("domain", domain), slog.Any("error", err))
		return nil, false
	}
	return b, true
}

// Put best-effort stores payload under domain's key with ttl applied
// atomically via SET ... EX. Failures are logged and swallowed.
func (c *Client) Put(ctx context.Context, domain string, payload []byte, ttl time.Duration) {
	if c.disabled.Load() {
		return
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	if err := c.rdb.Set(ctx, cacheKey(domain), encoded, ttl).Err(); err != nil {
		c.log.Warn("dnscache: put failed", slog.String("domain", domain), slog.Any("error", err))
		c.disable()
	}
}

// IncrQueries best-effort increments the total query counter.
func (c *Client) IncrQueries(ctx context.Context) {
	c.incr(ctx, keyQueryCount)
}

// IncrHits best-effort increments the cache-hit counter. This is a
// recommended extension, not required for conformance.
func (c *Client) IncrHits(ctx context.Context) {
	c.incr(ctx, keyHitCount)
}

// Counts returns the current query and hit counters, or zero values if
// the backend is unavailable. Used by the admin API's stats endpoint.
func (c *Client) Counts(ctx context.Context) (queries, hits int64) {
	if c.disabled.Load() {
		return 0, 0
	}
	queries, _ = c.rdb.Get(ctx, keyQueryCount).Int64()
	hits, _ = c.rdb.Get(ctx, keyHitCount).Int64()
	return queries, hits
}

func (c *Client) incr(ctx context.Context, key string) {
	if c.disabled.Load() {
		return
	}
	if err := c.rdb.Incr(ctx, key).Err(); err != nil {
		c.log.Warn("dnscache: incr failed", slog.String("key", key), slog.Any("error", err))
		c.disable()
	}
}
