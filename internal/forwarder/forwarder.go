// Package forwarder implements the core state machine: translating
// transaction IDs between clients and upstreams, timing out and
// failing over across the upstream pool, and populating the cache
// with whatever an upstream eventually answers.
package forwarder

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/jroosing/dnsfwd/internal/dnscache"
	"github.com/jroosing/dnsfwd/internal/requesttable"
	"github.com/jroosing/dnsfwd/internal/wire"
)

// DefaultAttemptTimeout is the per-attempt budget before the
// forwarder gives up on an upstream and fails over to the next one.
const DefaultAttemptTimeout = 5 * time.Second

// recvBufferSize is sized for the largest UDP datagram this resolver
// will ever receive; DNS-over-UDP replies are bounded well under this.
const recvBufferSize = 65535

// Forwarder owns the fail-over state machine. A single instance is
// shared by every concurrent in-flight request; all of its mutable
// state is either externally synchronized (RequestTable) or atomic.
type Forwarder struct {
	Table   *requesttable.Table
	Cache   *dnscache.Client
	Pool    UpstreamPool
	Log     *slog.Logger
	Replies *net.UDPConn // the main listening socket, used to send replies

	// AttemptTimeout overrides DefaultAttemptTimeout; zero means use
	// the default. Exposed so tests can shrink the 5s budget.
	AttemptTimeout time.Duration

	sticky    atomic.Int32
	fpCounter atomic.Uint64
}

// New returns a Forwarder ready to handle requests starting at pool
// index 0.
func New(table *requesttable.Table, cache *dnscache.Client, pool UpstreamPool, replies *net.UDPConn, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{Table: table, Cache: cache, Pool: pool, Replies: replies, Log: log}
}

func (f *Forwarder) timeout() time.Duration {
	if f.AttemptTimeout > 0 {
		return f.AttemptTimeout
	}
	return DefaultAttemptTimeout
}

// Handle runs the fail-over attempt sequence for one client query,
// starting at the sticky upstream index. It returns immediately; the
// attempt sequence runs on its own goroutine so the server loop's
// single reader is never blocked waiting on an upstream.
func (f *Forwarder) Handle(clientAddr *net.UDPAddr, reqBytes []byte, domain string) {
	go f.run(clientAddr, reqBytes, domain)
}

func (f *Forwarder) run(clientAddr *net.UDPAddr, reqBytes []byte, domain string) {
	clientQueryID, err := wire.ReadTransactionID(reqBytes)
	if err != nil {
		f.Log.Warn("forwarder: dropping query with unreadable transaction id", slog.Any("error", err))
		return
	}

	start := int(f.sticky.Load())
	for i := start; i < f.Pool.Len(); i++ {
		if f.attempt(i, clientAddr, clientQueryID, reqBytes, domain) {
			return
		}
	}
	f.Log.Info("forwarder: all upstreams exhausted, abandoning query",
		slog.String("domain", domain), slog.String("client", clientAddr.String()))
}

type attemptReply struct {
	data []byte
	err  error
}

// attempt runs the per-attempt procedure against pool index i and
// reports whether it produced a client reply.
func (f *Forwarder) attempt(i int, clientAddr *net.UDPAddr, clientQueryID uint16, reqBytes []byte, domain string) bool {
	upstream := f.Pool.At(i)

	upstreamID := f.Table.AllocUpstreamID()
	outgoing := append([]byte(nil), reqBytes...)
	if err := wire.WriteTransactionID(outgoing, upstreamID); err != nil {
		f.Log.Warn("forwarder: failed to rewrite transaction id", slog.Any("error", err))
		return false
	}

	fp := wire.NewFingerprint(clientAddr.IP, clientAddr.Port, clientQueryID, domain,
		time.Now(), f.fpCounter.Add(1), randomBytes(8))

	inserted := f.Table.Insert(requesttable.PendingRequest{
		ClientIP:        clientAddr.IP,
		ClientPort:      clientAddr.Port,
		ClientQueryID:   clientQueryID,
		UpstreamQueryID: upstreamID,
		Domain:          domain,
		Fingerprint:     fp,
		CreatedAt:       time.Now(),
	})
	if !inserted {
		f.Log.Warn("forwarder: fingerprint collision, dropping attempt", slog.String("fingerprint", fp))
		return false
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		f.Log.Warn("forwarder: failed to open upstream socket", slog.Any("error", err))
		f.Table.Remove(fp)
		return false
	}

	if _, err := conn.WriteToUDP(outgoing, upstream.Addr()); err != nil {
		f.Log.Warn("forwarder: send to upstream failed", slog.String("upstream", upstream.DisplayName), slog.Any("error", err))
		f.Table.Remove(fp)
		conn.Close()
		return false
	}

	replyCh := make(chan attemptReply, 1)
	go readOneReply(conn, replyCh)

	done := make(chan struct{})
	timer := time.AfterFunc(f.timeout(), func() { close(done) })

	select {
	case ev := <-replyCh:
		timer.Stop()
		return f.handleReply(i, conn, fp, ev, domain)
	case <-done:
		f.Log.Info("forwarder: upstream timed out, failing over",
			slog.String("upstream", upstream.DisplayName), slog.String("domain", domain))
		f.Table.Remove(fp)
		conn.Close()
		return false
	}
}

func readOneReply(conn *net.UDPConn, out chan<- attemptReply) {
	buf := make([]byte, recvBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		out <- attemptReply{err: err}
		return
	}
	out <- attemptReply{data: buf[:n:n]}
}

// handleReply processes one upstream datagram for attempt i. It
// always closes conn exactly once.
func (f *Forwarder) handleReply(i int, conn *net.UDPConn, fp string, ev attemptReply, domain string) bool {
	defer conn.Close()

	if ev.err != nil {
		f.Log.Warn("forwarder: upstream socket error", slog.Any("error", ev.err))
		f.Table.Remove(fp)
		return false
	}

	upstreamID, err := wire.ReadTransactionID(ev.data)
	if err != nil {
		f.Log.Warn("forwarder: unreadable upstream reply", slog.Any("error", err))
		f.Table.Remove(fp)
		return false
	}

	pending, ok := f.Table.LookupByUpstreamID(upstreamID)
	if !ok {
		f.Log.Warn("forwarder: dropping orphan upstream reply", slog.Int("upstream_id", int(upstreamID)))
		return false
	}
	f.Table.Remove(pending.Fingerprint)

	reply := append([]byte(nil), ev.data...)
	if err := wire.WriteTransactionID(reply, pending.ClientQueryID); err != nil {
		f.Log.Warn("forwarder: failed to restore client transaction id", slog.Any("error", err))
		return false
	}

	clientAddr := &net.UDPAddr{IP: pending.ClientIP, Port: pending.ClientPort}
	if _, err := f.Replies.WriteToUDP(reply, clientAddr); err != nil {
		f.Log.Warn("forwarder: failed to reply to client", slog.Any("error", err))
		return false
	}

	if f.Cache != nil {
		go f.Cache.Put(context.Background(), domain, reply, dnscache.ResponseTTL)
	}
	f.sticky.Store(int32(i))
	return true
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
