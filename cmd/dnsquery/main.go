// Command dnsquery sends a single query against a running resolver and
// reports not just the answer but where it came from: the AA bit on a
// synthesized reply means the curated local zone answered directly,
// and an optional admin-API probe taken right before and right after
// the query tells apart a cache hit from a genuine upstream round trip.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jroosing/dnsfwd/internal/adminapi"
	"github.com/jroosing/dnsfwd/internal/dnsmsg"
)

func main() {
	var (
		server   = flag.String("server", "127.0.0.1:1053", "DNS server HOST:PORT")
		name     = flag.String("name", "example.com", "Query name")
		qtype    = flag.Int("qtype", 1, "Query type (numeric, A=1)")
		timeout  = flag.Duration("timeout", 2*time.Second, "Timeout")
		recvSize = flag.Int("recv-size", 2048, "UDP receive buffer size")
		quiet    = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
		adminURL = flag.String("admin", "", "Admin API base URL (e.g. http://127.0.0.1:8080/api/v1); when set, distinguishes a cache hit from an upstream round trip")
		apiKey   = flag.String("api-key", "", "X-API-Key for the admin API, if the server requires one")
	)
	flag.Parse()

	before, haveBefore := fetchCounts(*adminURL, *apiKey)

	resp, err := queryUDP(*server, *name, uint16(*qtype), *timeout, *recvSize)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	p, err := dnsmsg.ParsePacket(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(resp))
		return
	}

	after, haveAfter := fetchCounts(*adminURL, *apiKey)

	fmt.Printf("id=%d rcode=%d answers=%d authorities=%d additionals=%d source=%s\n",
		p.Header.ID,
		dnsmsg.RCodeFromFlags(p.Header.Flags),
		len(p.Answers),
		len(p.Authorities),
		len(p.Additionals),
		answerSource(p.Header.Flags, before, after, haveBefore && haveAfter),
	)

	rows := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Println(s)
	}
}

// answerSource infers where the answer came from. A set AA bit is
// unambiguous: internal/localzone.Synthesize is the only code path
// that sets it. Otherwise, an admin-API snapshot taken right before and
// right after the query tells a cache hit (the hit counter advanced)
// from a genuine upstream round trip.
func answerSource(flags uint16, before, after counts, haveDelta bool) string {
	if flags&uint16(dnsmsg.AAFlag) != 0 {
		return "local-zone"
	}
	if !haveDelta {
		return "upstream-or-cache (pass -admin to tell them apart)"
	}
	if after.hits > before.hits {
		return "cache"
	}
	return "upstream"
}

type counts struct {
	queries int64
	hits    int64
}

// fetchCounts best-effort reads the query/hit counters from the admin
// API's stats endpoint. ok is false when adminURL is empty or the
// request fails, in which case the caller reports "upstream-or-cache"
// rather than guessing.
func fetchCounts(adminURL, apiKey string) (c counts, ok bool) {
	if adminURL == "" {
		return counts{}, false
	}
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(adminURL, "/")+"/stats", nil)
	if err != nil {
		return counts{}, false
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return counts{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return counts{}, false
	}
	var stats adminapi.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return counts{}, false
	}
	return counts{queries: stats.QueryCount, hits: stats.HitCount}, true
}

func queryUDP(server, name string, qtype uint16, timeout time.Duration, recvSize int) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	reqBytes, err := buildQuery(name, qtype)
	if err != nil {
		return nil, err
	}
	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(reqBytes); err != nil {
		return nil, err
	}
	buf := make([]byte, recvSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func buildQuery(name string, qtype uint16) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name required")
	}
	p := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: uint16(time.Now().UnixNano()), Flags: uint16(dnsmsg.RDFlag)},
		Questions: []dnsmsg.Question{{Name: strings.TrimSuffix(name, "."), Type: qtype, Class: uint16(dnsmsg.ClassIN)}},
	}
	return p.Marshal()
}

func formatRR(rr dnsmsg.Record) string {
	name := rr.Name
	if name == "" {
		name = "."
	}
	switch dnsmsg.RecordType(rr.Type) {
	case dnsmsg.TypeA:
		if b, ok := rr.Data.([]byte); ok && len(b) == 4 {
			return fmt.Sprintf("%s %d IN A %d.%d.%d.%d", name, rr.TTL, b[0], b[1], b[2], b[3])
		}
	case dnsmsg.TypeAAAA:
		if b, ok := rr.Data.([]byte); ok && len(b) == 16 {
			ip := net.IP(b)
			return fmt.Sprintf("%s %d IN AAAA %s", name, rr.TTL, ip.String())
		}
	case dnsmsg.TypeCNAME:
		if s, ok := rr.Data.(string); ok {
			return fmt.Sprintf("%s %d IN CNAME %s", name, rr.TTL, s)
		}
	}
	return fmt.Sprintf("%s %d IN TYPE%d (unparsed)", name, rr.TTL, rr.Type)
}
