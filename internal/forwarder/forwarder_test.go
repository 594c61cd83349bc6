package forwarder

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnsfwd/internal/requesttable"
)

// fakeUpstream is a loopback UDP listener standing in for a public
// resolver. handle receives the forwarded query bytes (with the
// rewritten upstream transaction ID already applied) and returns the
// reply bytes to send back, or nil to simulate no reply at all.
type fakeUpstream struct {
	Upstream
	conn *net.UDPConn
}

func startFakeUpstream(t *testing.T, name string, handle func(query []byte) []byte) fakeUpstream {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	addr := conn.LocalAddr().(*net.UDPAddr)
	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			reply := handle(append([]byte(nil), buf[:n]...))
			if reply == nil {
				continue // simulate a silent upstream: never reply
			}
			conn.WriteToUDP(reply, from)
		}
	}()

	return fakeUpstream{
		Upstream: Upstream{IP: addr.IP, Port: addr.Port, DisplayName: name},
		conn:     conn,
	}
}

func startClientSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestForwarder(t *testing.T, pool UpstreamPool) (*Forwarder, *net.UDPConn) {
	t.Helper()
	replies, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { replies.Close() })

	f := New(requesttable.New(), nil, pool, replies, nil)
	f.AttemptTimeout = 200 * time.Millisecond
	return f, replies
}

func buildQuery(id uint16) []byte {
	msg := make([]byte, 12)
	msg[0] = byte(id >> 8)
	msg[1] = byte(id)
	msg[5] = 1
	msg = append(msg, 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0)
	msg = append(msg, 0, 1, 0, 1)
	return msg
}

// echoWithPayload builds a fake upstream reply: same transaction ID
// the query carried, plus a fixed trailing payload so tests can
// assert the non-ID bytes are forwarded verbatim.
func echoWithPayload(query []byte, payload ...byte) []byte {
	reply := append([]byte(nil), query[0:2]...)
	return append(reply, payload...)
}

func readWithTimeout(t *testing.T, conn *net.UDPConn, timeout time.Duration) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err, "expected a reply before the deadline")
	return buf[:n]
}

func TestHandle_FirstUpstreamSucceeds(t *testing.T) {
	u0 := startFakeUpstream(t, "U0", func(query []byte) []byte {
		return echoWithPayload(query, 0x81, 0x80, 0, 1, 0, 1, 1, 2, 3)
	})
	pool := NewUpstreamPool([]Upstream{u0.Upstream})
	f, _ := newTestForwarder(t, pool)

	client := startClientSocket(t)
	clientAddr := client.LocalAddr().(*net.UDPAddr)

	query := buildQuery(0x1234)
	f.Handle(clientAddr, query, "example.com")

	reply := readWithTimeout(t, client, time.Second)
	assert.Equal(t, byte(0x12), reply[0])
	assert.Equal(t, byte(0x34), reply[1])
	assert.Equal(t, []byte{0x81, 0x80, 0, 1, 0, 1, 1, 2, 3}, reply[2:])

	pending, upstream := f.Table.Stats()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 0, upstream)
}

func TestHandle_FirstTimesOutSecondSucceeds(t *testing.T) {
	u0 := startFakeUpstream(t, "U0", func(query []byte) []byte {
		return nil // never replies
	})
	u1 := startFakeUpstream(t, "U1", func(query []byte) []byte {
		return echoWithPayload(query, 9, 9)
	})
	pool := NewUpstreamPool([]Upstream{u0.Upstream, u1.Upstream})
	f, _ := newTestForwarder(t, pool)

	client := startClientSocket(t)
	clientAddr := client.LocalAddr().(*net.UDPAddr)

	query := buildQuery(0x5555)
	f.Handle(clientAddr, query, "example.com")

	reply := readWithTimeout(t, client, 2*time.Second)
	assert.Equal(t, byte(0x55), reply[0])
	assert.Equal(t, byte(0x55), reply[1])

	pending, _ := f.Table.Stats()
	assert.Equal(t, 0, pending, "table must be empty once the successful attempt's entry is removed")
}

func TestHandle_AllUpstreamsFail(t *testing.T) {
	silent := func([]byte) []byte { return nil }
	u0 := startFakeUpstream(t, "U0", silent)
	u1 := startFakeUpstream(t, "U1", silent)
	pool := NewUpstreamPool([]Upstream{u0.Upstream, u1.Upstream})
	f, _ := newTestForwarder(t, pool)

	client := startClientSocket(t)
	clientAddr := client.LocalAddr().(*net.UDPAddr)

	f.Handle(clientAddr, buildQuery(0x2222), "example.com")

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 512)
	_, err := client.Read(buf)
	assert.Error(t, err, "no reply should be sent once every upstream has failed")

	pending, upstream := f.Table.Stats()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 0, upstream)
}

func TestHandle_StickyUpdatesOnlyOnSuccess(t *testing.T) {
	u0 := startFakeUpstream(t, "U0", func(query []byte) []byte {
		return echoWithPayload(query)
	})
	pool := NewUpstreamPool([]Upstream{u0.Upstream})
	f, _ := newTestForwarder(t, pool)

	client := startClientSocket(t)
	clientAddr := client.LocalAddr().(*net.UDPAddr)

	f.Handle(clientAddr, buildQuery(0x1), "example.com")
	readWithTimeout(t, client, time.Second)

	assert.Equal(t, int32(0), f.sticky.Load())
}

func TestHandleReply_OrphanIsDroppedWithoutPanic(t *testing.T) {
	pool := NewUpstreamPool([]Upstream{{IP: net.ParseIP("127.0.0.1"), Port: 53, DisplayName: "U0"}})
	f, _ := newTestForwarder(t, pool)

	// Simulate a reply arriving for a fingerprint that is no longer
	// in the table (already removed by a timeout/fail-over race).
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	reply := attemptReply{data: []byte{0xAA, 0xAA, 0, 0}}
	ok := f.handleReply(0, conn, "no-such-fingerprint", reply, "example.com")

	assert.False(t, ok, "a reply whose transaction id matches no pending entry must not be dispatched")
}
