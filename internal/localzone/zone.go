// Package localzone synthesizes authoritative answers for a small,
// curated set of A/AAAA/CNAME records that take precedence over the
// cache and upstream forwarding path. It is deliberately not a general
// authoritative zone engine (no negative caching, no wildcard
// matching): it exists to let an operator pin a handful of names (e.g.
// an internal hostname, an ad-blocked domain routed to 0.0.0.0) via
// the admin API without running a separate DNS server.
package localzone

import (
	"net"
	"strings"
	"sync"

	"github.com/jroosing/dnsfwd/internal/dnsmsg"
)

// Record is one curated answer: a name maps to one or more of these.
type Record struct {
	Type  dnsmsg.RecordType // TypeA, TypeAAAA, or TypeCNAME
	Value string            // dotted-quad, IPv6 literal, or CNAME target
	TTL   uint32
}

// Zone holds the in-memory curated record set, keyed by lowercase name
// (with or without the trailing root dot; lookups match either form).
// It is rebuilt wholesale on Load (boot, and /api/v1/zone/reload) rather
// than mutated incrementally, since reloads are rare and this keeps
// concurrent lookups lock-free of any partial-update window.
type Zone struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// New returns an empty Zone.
func New() *Zone {
	return &Zone{records: make(map[string][]Record)}
}

// Load atomically replaces the zone's contents.
func (z *Zone) Load(records map[string][]Record) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.records = records
}

// owned pairs a curated Record with the name it answers for — the
// queried name for a direct match, or the CNAME target for a chased
// address record.
type owned struct {
	name string
	rec  Record
}

// lookup returns the curated records for name, following at most one
// CNAME hop for address queries (matching the teacher's chaseCNAME
// behavior, simplified to a single hop since curated records are not
// expected to chain deeply).
func (z *Zone) lookup(name string, qtype dnsmsg.RecordType) ([]owned, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	// Keys may be stored with or without the trailing root dot.
	get := func(n string) ([]Record, bool) {
		if rrs, ok := z.records[n]; ok {
			return rrs, true
		}
		rrs, ok := z.records[n+"."]
		return rrs, ok
	}

	name = dnsmsg.NormalizeName(name)
	if rrs, ok := get(name); ok {
		if matched := filterType(rrs, qtype); len(matched) > 0 {
			return own(name, matched), true
		}
	}

	if qtype != dnsmsg.TypeA && qtype != dnsmsg.TypeAAAA {
		return nil, false
	}
	rrs, ok := get(name)
	if !ok {
		return nil, false
	}
	cnames := filterType(rrs, dnsmsg.TypeCNAME)
	if len(cnames) == 0 {
		return nil, false
	}
	target := dnsmsg.NormalizeName(cnames[0].Value)
	answers := own(name, cnames[:1])
	if targetRRs, ok := get(target); ok {
		answers = append(answers, own(target, filterType(targetRRs, qtype))...)
	}
	return answers, true
}

func own(name string, rrs []Record) []owned {
	out := make([]owned, len(rrs))
	for i, rr := range rrs {
		out[i] = owned{name: name, rec: rr}
	}
	return out
}

func filterType(rrs []Record, qtype dnsmsg.RecordType) []Record {
	var out []Record
	for _, rr := range rrs {
		if rr.Type == qtype {
			out = append(out, rr)
		}
	}
	return out
}

// Synthesize builds a full wire-format reply for reqBytes if its
// question is covered by the curated zone. ok is false when the name
// has no curated entry of the requested type, in which case the caller
// should fall through to the cache/forwarder path.
func Synthesize(z *Zone, reqBytes []byte) (reply []byte, ok bool) {
	pkt, err := dnsmsg.ParsePacket(reqBytes)
	if err != nil || len(pkt.Questions) == 0 {
		return nil, false
	}
	q := pkt.Questions[0]

	matches, found := z.lookup(q.Name, dnsmsg.RecordType(q.Type))
	if !found {
		return nil, false
	}

	answers := make([]dnsmsg.Record, 0, len(matches))
	for _, m := range matches {
		answers = append(answers, toWireRecord(m.name, m.rec))
	}

	resp := dnsmsg.Packet{
		Header: dnsmsg.Header{
			ID:    pkt.Header.ID,
			Flags: responseFlags(pkt.Header.Flags),
		},
		Questions: []dnsmsg.Question{q},
		Answers:   answers,
	}
	b, err := resp.Marshal()
	if err != nil {
		return nil, false
	}
	return b, true
}

// responseFlags sets QR and AA, preserves RD, and clears RCODE to
// NOERROR (a curated match is definitionally a successful answer).
func responseFlags(reqFlags uint16) uint16 {
	flags := reqFlags
	flags |= dnsmsg.QRFlag | dnsmsg.AAFlag
	flags &^= dnsmsg.RCodeMask
	return flags
}

func toWireRecord(owner string, rr Record) dnsmsg.Record {
	rec := dnsmsg.Record{Name: owner, Type: uint16(rr.Type), Class: uint16(dnsmsg.ClassIN), TTL: rr.TTL}
	switch rr.Type {
	case dnsmsg.TypeA, dnsmsg.TypeAAAA:
		rec.Data = ipBytes(rr.Value, rr.Type)
	case dnsmsg.TypeCNAME:
		rec.Data = rr.Value
	}
	return rec
}

// ipBytes parses literal as the wire-format address bytes for t,
// falling back to an all-zero address if a curated record holds a
// malformed literal rather than failing the whole synthesis.
func ipBytes(literal string, t dnsmsg.RecordType) []byte {
	want := 4
	if t == dnsmsg.TypeAAAA {
		want = 16
	}
	ip := net.ParseIP(strings.TrimSpace(literal))
	if ip == nil {
		return make([]byte, want)
	}
	if t == dnsmsg.TypeAAAA {
		if v6 := ip.To16(); v6 != nil {
			return []byte(v6)
		}
		return make([]byte, want)
	}
	if v4 := ip.To4(); v4 != nil {
		return []byte(v4)
	}
	return make([]byte, want)
}
