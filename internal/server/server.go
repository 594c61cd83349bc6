// Package server implements the single-socket UDP server loop: the
// process's single reader (per the concurrency model), which extracts
// just enough from each datagram to route it through the curated local
// zone, then the cache, then the forwarder's fail-over state machine.
//
// Grounded on the teacher's internal/server/udp_server.go (buffer
// pooling, close-the-socket-to-unblock shutdown) and runner.go
// (signal-driven lifecycle), simplified to one socket and one reader:
// the teacher's SO_REUSEPORT multi-socket fan-out and fixed
// worker-pool-per-socket dispatch are dropped, since forwarder.Handle
// already spawns its own per-request goroutine and a single reader is
// mandated here rather than being a throughput optimization.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jroosing/dnsfwd/internal/dnscache"
	"github.com/jroosing/dnsfwd/internal/forwarder"
	"github.com/jroosing/dnsfwd/internal/localzone"
	"github.com/jroosing/dnsfwd/internal/poolutil"
	"github.com/jroosing/dnsfwd/internal/requesttable"
	"github.com/jroosing/dnsfwd/internal/wire"
)

// recvBufferSize matches the largest datagram this resolver will ever
// read off the wire.
const recvBufferSize = 65535

// DefaultSweepInterval is how often the request table is swept for
// stale entries.
const DefaultSweepInterval = 60 * time.Second

// DefaultStatsInterval is how often a stats summary is logged. Zero
// disables the periodic stats log.
const DefaultStatsInterval = 300 * time.Second

var bufferPool = poolutil.New(func() *[]byte {
	buf := make([]byte, recvBufferSize)
	return &buf
})

// Server binds the single listening socket and dispatches each
// incoming datagram through local zone -> cache -> forwarder.
type Server struct {
	Conn      *net.UDPConn
	Forwarder *forwarder.Forwarder
	Cache     *dnscache.Client
	Zone      *localzone.Zone // nil disables local-zone synthesis
	Table     *requesttable.Table
	Log       *slog.Logger

	SweepInterval time.Duration
	StatsInterval time.Duration

	wg sync.WaitGroup
}

// New returns a Server ready to Run.
func New(conn *net.UDPConn, fwd *forwarder.Forwarder, cache *dnscache.Client, zone *localzone.Zone, table *requesttable.Table, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Conn: conn, Forwarder: fwd, Cache: cache, Zone: zone, Table: table, Log: log,
		SweepInterval: DefaultSweepInterval,
		StatsInterval: DefaultStatsInterval,
	}
}

// Run starts the receive loop and the periodic sweep/stats jobs. It
// blocks until ctx is cancelled and then returns; it does not close the
// socket or wait for the jobs to exit, which is what Stop does.
func (s *Server) Run(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recvLoop(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()

	if s.StatsInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(ctx)
		}()
	}

	<-ctx.Done()
	return nil
}

// Stop closes the listening socket and waits up to timeout for the
// receive loop and background jobs to exit.
func (s *Server) Stop(timeout time.Duration) error {
	_ = s.Conn.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("server: timeout waiting for shutdown")
	}
}

func (s *Server) recvLoop(ctx context.Context) {
	for {
		bufPtr := bufferPool.Get()
		buf := *bufPtr

		n, peer, err := s.Conn.ReadFromUDP(buf)
		if err != nil {
			bufferPool.Put(bufPtr)
			if ctx.Err() != nil {
				return
			}
			return // socket closed
		}

		s.handleDatagram(peer, buf[:n])
		bufferPool.Put(bufPtr)
	}
}

func (s *Server) handleDatagram(peer *net.UDPAddr, payload []byte) {
	domain, err := wire.ExtractQuestionName(payload)
	if err != nil {
		s.Log.Warn("server: dropping unparsable query", slog.Any("error", err), slog.String("peer", peer.String()))
		return
	}

	if s.Cache != nil {
		s.Cache.IncrQueries(context.Background())
	}

	if s.Zone != nil {
		if reply, ok := localzone.Synthesize(s.Zone, payload); ok {
			_, _ = s.Conn.WriteToUDP(reply, peer)
			return
		}
	}

	if s.Cache != nil {
		if cached, ok := s.Cache.Get(context.Background(), domain); ok {
			clientID, err := wire.ReadTransactionID(payload)
			if err == nil && wire.WriteTransactionID(cached, clientID) == nil {
				_, _ = s.Conn.WriteToUDP(cached, peer)
				s.Cache.IncrHits(context.Background())
				return
			}
		}
	}

	// The buffer backing payload returns to the pool as soon as this
	// function returns; forwarder.Handle runs asynchronously, so it
	// needs its own copy.
	owned := append([]byte(nil), payload...)
	s.Forwarder.Handle(peer, owned, domain)
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval(s.SweepInterval, DefaultSweepInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Table.Sweep(requesttable.StaleThreshold)
			if n > 0 {
				s.Log.Debug("server: swept stale pending requests", slog.Int("count", n))
			}
		}
	}
}

func (s *Server) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval(s.StatsInterval, DefaultStatsInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, upstream := s.Table.Stats()
			s.Log.Info("server: periodic stats", slog.Int("pending", pending), slog.Int("upstream_ids", upstream))
		}
	}
}

func (s *Server) interval(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
