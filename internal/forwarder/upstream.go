package forwarder

import "net"

// Upstream is one public recursive resolver the forwarder may
// delegate a query to.
type Upstream struct {
	IP          net.IP
	Port        int
	DisplayName string
}

// Addr returns the upstream's dial address.
func (u Upstream) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: u.IP, Port: u.Port}
}

// UpstreamPool is the ordered, finite list of upstreams the forwarder
// walks during fail-over. It is treated as immutable configuration
// for the lifetime of the process: changes made through the admin API
// are persisted but only take effect on the next restart.
type UpstreamPool struct {
	upstreams []Upstream
}

// NewUpstreamPool returns a pool over upstreams in the given order.
func NewUpstreamPool(upstreams []Upstream) UpstreamPool {
	return UpstreamPool{upstreams: upstreams}
}

// Len returns the number of upstreams in the pool.
func (p UpstreamPool) Len() int {
	return len(p.upstreams)
}

// At returns the upstream at index i. The caller must ensure
// 0 <= i < p.Len().
func (p UpstreamPool) At(i int) Upstream {
	return p.upstreams[i]
}
