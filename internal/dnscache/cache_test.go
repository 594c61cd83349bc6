package dnscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c := New(context.Background(), rdb, nil)
	return c, mr
}

func TestNewRecordsReadyAndStartupTimestamp(t *testing.T) {
	c, mr := newTestClient(t)
	assert.True(t, c.Ready())

	v, err := mr.Get("dns:startup")
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, v)
	assert.NoError(t, err, "startup timestamp must be ISO-8601")
}

func TestPutThenGetRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	payload := []byte{0x56, 0x78, 1, 2, 3}
	c.Put(ctx, "example.com", payload, ResponseTTL)

	got, ok := c.Get(ctx, "example.com")
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _ := newTestClient(t)
	_, ok := c.Get(context.Background(), "absent.example.com")
	assert.False(t, ok)
}

func TestPutAppliesTTL(t *testing.T) {
	c, mr := newTestClient(t)
	c.Put(context.Background(), "example.com", []byte("x"), ResponseTTL)

	ttl := mr.TTL("dns:example.com")
	assert.Equal(t, ResponseTTL, ttl)
}

func TestIncrQueriesAndHits(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	c.IncrQueries(ctx)
	c.IncrQueries(ctx)
	c.IncrHits(ctx)

	queries, err := mr.Get("dns:query_count")
	require.NoError(t, err)
	assert.Equal(t, "2", queries)
	hits, err := mr.Get("dns:hit_count")
	require.NoError(t, err)
	assert.Equal(t, "1", hits)
}

func TestCountsReadsBothCounters(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	c.IncrQueries(ctx)
	c.IncrQueries(ctx)
	c.IncrQueries(ctx)
	c.IncrHits(ctx)

	queries, hits := c.Counts(ctx)
	assert.Equal(t, int64(3), queries)
	assert.Equal(t, int64(1), hits)
}

func TestDegradesToNoOpWhenBackendUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(context.Background(), rdb, nil)
	require.True(t, c.Ready())

	rdb.Close() // simulate the backend going away mid-run
	ctx := context.Background()

	_, ok := c.Get(ctx, "example.com")
	assert.False(t, ok)

	c.Put(ctx, "example.com", []byte("x"), ResponseTTL) // must not panic

	assert.True(t, c.disabled.Load(), "a runtime backend error must disable further calls")
}

func TestPutKeysByDomainExactlyAsPassed(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	// Caller is responsible for lower-casing before calling into the
	// cache; this asserts the key used is exactly what was passed.
	c.Put(ctx, "example.com", []byte("x"), ResponseTTL)
	assert.True(t, mr.Exists("dns:example.com"))
}
