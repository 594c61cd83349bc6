package requesttable

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(fp string, upstreamID uint16, createdAt time.Time) PendingRequest {
	return PendingRequest{
		ClientIP:        net.ParseIP("127.0.0.1"),
		ClientPort:      44444,
		ClientQueryID:   0x1234,
		UpstreamQueryID: upstreamID,
		Domain:          "example.com",
		Fingerprint:     fp,
		CreatedAt:       createdAt,
	}
}

func TestInsertAndLookupRoundTrip(t *testing.T) {
	tbl := New()
	req := sampleRequest("fp1", 100, time.Now())

	require.True(t, tbl.Insert(req))

	byFP, ok := tbl.LookupByFingerprint("fp1")
	require.True(t, ok)
	assert.Equal(t, req, byFP)

	byID, ok := tbl.LookupByUpstreamID(100)
	require.True(t, ok)
	assert.Equal(t, req, byID)
}

func TestInsertDuplicateFingerprintFails(t *testing.T) {
	tbl := New()
	require.True(t, tbl.Insert(sampleRequest("fp1", 1, time.Now())))
	assert.False(t, tbl.Insert(sampleRequest("fp1", 2, time.Now())))
}

func TestStatsInvariantEqualCounts(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("fp1", 1, time.Now()))
	tbl.Insert(sampleRequest("fp2", 2, time.Now()))

	pending, upstream := tbl.Stats()
	assert.Equal(t, 2, pending)
	assert.Equal(t, pending, upstream)
}

func TestRemoveIsIdempotent(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("fp1", 1, time.Now()))

	tbl.Remove("fp1")
	pending, upstream := tbl.Stats()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 0, upstream)

	tbl.Remove("fp1") // second removal: no-op, same state
	pending, upstream = tbl.Stats()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 0, upstream)
}

func TestRemoveDeletesFromBothMapsAtomically(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("fp1", 42, time.Now()))
	tbl.Remove("fp1")

	_, ok := tbl.LookupByFingerprint("fp1")
	assert.False(t, ok)
	_, ok = tbl.LookupByUpstreamID(42)
	assert.False(t, ok)
}

func TestLookupByUpstreamIDUnknownIsAbsent(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("fp1", 1, time.Now()))

	_, ok := tbl.LookupByUpstreamID(9999)
	assert.False(t, ok, "an upstream ID with no matching entry must report absent, not a stale match")
}

func TestSweepRemovesOnlyStaleEntries(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("old", 1, time.Now().Add(-time.Hour)))
	tbl.Insert(sampleRequest("fresh", 2, time.Now()))

	swept := tbl.Sweep(StaleThreshold)
	assert.Equal(t, 1, swept)

	_, ok := tbl.LookupByFingerprint("old")
	assert.False(t, ok)
	_, ok = tbl.LookupByFingerprint("fresh")
	assert.True(t, ok)
}

func TestSweepIsIdempotentWithNoNewInserts(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("old", 1, time.Now().Add(-time.Hour)))

	first := tbl.Sweep(StaleThreshold)
	second := tbl.Sweep(StaleThreshold)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestAllocUpstreamIDSkipsCollisions(t *testing.T) {
	tbl := New()
	tbl.Insert(sampleRequest("fp1", 1, time.Now()))
	tbl.Insert(sampleRequest("fp2", 2, time.Now()))

	sequence := []uint16{1, 2, 7}
	i := 0
	tbl.rand = func() uint16 {
		v := sequence[i]
		i++
		return v
	}

	id := tbl.AllocUpstreamID()
	assert.Equal(t, uint16(7), id, "allocator must reject IDs already present and return the first free draw")
	assert.Equal(t, 3, i, "allocator must have drawn exactly three times: two rejections plus the accepted value")

	// Table is unchanged until the caller actually inserts.
	pending, upstream := tbl.Stats()
	assert.Equal(t, 2, pending)
	assert.Equal(t, 2, upstream)
}

func TestAllocUpstreamIDWithInjectableRand(t *testing.T) {
	calls := 0
	tbl := NewWithRand(func() uint16 {
		calls++
		return 55
	})
	id := tbl.AllocUpstreamID()
	assert.Equal(t, uint16(55), id)
	assert.Equal(t, 1, calls)
}
