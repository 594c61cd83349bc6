// Package requesttable tracks in-flight upstream exchanges: the
// concurrent bimap between a request's fingerprint and the upstream
// transaction ID allocated for it, plus collision-free ID allocation
// and age-based reaping of abandoned entries.
package requesttable

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"
)

// StaleThreshold and SweepPeriod bound how long a PendingRequest may
// survive unresolved. A healthy exchange resolves well under
// StaleThreshold: the per-attempt timeout is 5s and the upstream pool
// has at most a handful of entries.
const (
	StaleThreshold = 30 * time.Second
	SweepPeriod    = 60 * time.Second
)

// PendingRequest is the unit of in-flight state the forwarder tracks
// between sending an upstream query and receiving (or losing) its reply.
type PendingRequest struct {
	ClientIP        net.IP
	ClientPort      int
	ClientQueryID   uint16
	UpstreamQueryID uint16
	Domain          string
	Fingerprint     string
	CreatedAt       time.Time
}

// Table is the fingerprint/upstream-ID bimap. A single mutex guards
// both maps: mutations always touch both together, and lookups are
// cheap map reads rather than a contended hot path worth an RWMutex's
// extra bookkeeping.
type Table struct {
	mu           sync.Mutex
	byFingerprint map[string]*PendingRequest
	byUpstreamID  map[uint16]string

	// rand is injectable so tests can force allocation collisions
	// with a scripted sequence of "random" values.
	rand func() uint16
}

// New returns an empty Table using the package's default randomness
// source for upstream-ID allocation.
func New() *Table {
	return &Table{
		byFingerprint: make(map[string]*PendingRequest),
		byUpstreamID:  make(map[uint16]string),
		rand:          defaultRand,
	}
}

func defaultRand() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

// NewWithRand returns an empty Table whose upstream-ID allocator draws
// from randFn instead of the default source. Used in tests that need
// to force a specific collision sequence.
func NewWithRand(randFn func() uint16) *Table {
	t := New()
	t.rand = randFn
	return t
}

// allocUpstreamIDLocked returns a 16-bit value absent from byUpstreamID,
// retrying with fresh randomness until it finds one. Must be called
// with mu held.
func (t *Table) allocUpstreamIDLocked() uint16 {
	for {
		id := t.rand()
		if _, taken := t.byUpstreamID[id]; !taken {
			return id
		}
	}
}

// AllocUpstreamID returns a unique upstream transaction ID, without
// reserving it. Callers should allocate and Insert promptly; the ID
// remains free to any other allocator until inserted.
func (t *Table) AllocUpstreamID() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocUpstreamIDLocked()
}

// Insert atomically adds req to both maps, keyed by req.Fingerprint
// and req.UpstreamQueryID. Returns false if the fingerprint already
// exists (should not occur by construction).
func (t *Table) Insert(req PendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byFingerprint[req.Fingerprint]; exists {
		return false
	}
	stored := req
	t.byFingerprint[req.Fingerprint] = &stored
	t.byUpstreamID[req.UpstreamQueryID] = req.Fingerprint
	return true
}

// LookupByUpstreamID returns the pending request awaiting the given
// upstream transaction ID, if any.
func (t *Table) LookupByUpstreamID(id uint16) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fp, ok := t.byUpstreamID[id]
	if !ok {
		return PendingRequest{}, false
	}
	req, ok := t.byFingerprint[fp]
	if !ok {
		return PendingRequest{}, false
	}
	return *req, true
}

// LookupByFingerprint returns the pending request with the given
// fingerprint, if any.
func (t *Table) LookupByFingerprint(fp string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byFingerprint[fp]
	if !ok {
		return PendingRequest{}, false
	}
	return *req, true
}

// Remove atomically deletes the entry for fp from both maps. Removal
// is idempotent: removing an absent fingerprint is a no-op.
func (t *Table) Remove(fp string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(fp)
}

func (t *Table) removeLocked(fp string) {
	req, ok := t.byFingerprint[fp]
	if !ok {
		return
	}
	delete(t.byFingerprint, fp)
	delete(t.byUpstreamID, req.UpstreamQueryID)
}

// Sweep removes every entry older than maxAge and returns how many
// were reaped. Idempotent when called repeatedly with no new inserts.
func (t *Table) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var stale []string
	for fp, req := range t.byFingerprint {
		if now.Sub(req.CreatedAt) > maxAge {
			stale = append(stale, fp)
		}
	}
	for _, fp := range stale {
		t.removeLocked(fp)
	}
	return len(stale)
}

// Stats returns (pending_count, upstream_count); these are always
// equal by the bimap invariant.
func (t *Table) Stats() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byFingerprint), len(t.byUpstreamID)
}
