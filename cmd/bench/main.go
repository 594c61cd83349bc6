// Command bench drives concurrent load against a running resolver and,
// when pointed at the admin API, reports the cache-hit ratio the run
// produced rather than just raw latency — the resolver's caching layer
// is the thing worth stress-testing here, not just the UDP socket.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jroosing/dnsfwd/internal/adminapi"
	"github.com/jroosing/dnsfwd/internal/dnsmsg"
)

func main() {
	var (
		server      = flag.String("server", "127.0.0.1:1053", "DNS server HOST:PORT")
		names       = flag.String("names", "a.bench.test,b.bench.test,c.bench.test,d.bench.test", "Comma-separated query names, rotated round-robin so repeats exercise the cache")
		qtype       = flag.Int("qtype", 1, "Query type (numeric, A=1)")
		concurrency = flag.Int("concurrency", 200, "Number of concurrent workers")
		requests    = flag.Int("requests", 20000, "Total number of requests")
		timeout     = flag.Duration("timeout", 2*time.Second, "Per-request timeout")
		recvSize    = flag.Int("recv-size", 2048, "UDP receive buffer size")
		adminURL    = flag.String("admin", "", "Admin API base URL (e.g. http://127.0.0.1:8080/api/v1); when set, reports the cache-hit ratio the run produced")
		apiKey      = flag.String("api-key", "", "X-API-Key for the admin API, if the server requires one")
	)
	flag.Parse()

	nameList := splitNames(*names)
	queries := make([][]byte, len(nameList))
	for i, n := range nameList {
		q, err := buildQuery(n, uint16(*qtype))
		if err != nil {
			panic(err)
		}
		queries[i] = q
	}

	addr, err := net.ResolveUDPAddr("udp", *server)
	if err != nil {
		panic(err)
	}

	before, haveBefore := fetchCounts(*adminURL, *apiKey)

	conc := *concurrency
	if conc < 1 {
		conc = 1
	}
	total := *requests
	if total < 1 {
		total = 1
	}
	per := total / conc
	rem := total % conc

	lat := make([]float64, 0, total)
	var latMu sync.Mutex
	var seq int64
	var seqMu sync.Mutex
	nextIndex := func() int {
		seqMu.Lock()
		defer seqMu.Unlock()
		i := int(seq % int64(len(queries)))
		seq++
		return i
	}

	t0 := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < conc; i++ {
		n := per
		if i < rem {
			n++
		}
		if n <= 0 {
			continue
		}
		wg.Add(1)
		go func(num int) {
			defer wg.Done()
			c, err := net.DialUDP("udp", nil, addr)
			if err != nil {
				return
			}
			defer c.Close()
			buf := make([]byte, *recvSize)
			for j := 0; j < num; j++ {
				reqBytes := queries[nextIndex()]
				start := time.Now()
				_ = c.SetDeadline(time.Now().Add(*timeout))
				if _, err := c.Write(reqBytes); err != nil {
					continue
				}
				nn, err := c.Read(buf)
				if err != nil {
					continue
				}
				_, _ = dnsmsg.ParsePacket(buf[:nn])
				ms := float64(time.Since(start).Microseconds()) / 1000.0
				latMu.Lock()
				lat = append(lat, ms)
				latMu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	elapsed := time.Since(t0).Seconds()

	after, haveAfter := fetchCounts(*adminURL, *apiKey)

	if len(lat) == 0 {
		fmt.Printf("no successful requests\n")
		return
	}
	sort.Float64s(lat)
	p50 := percentile(lat, 50)
	p95 := percentile(lat, 95)
	p99 := percentile(lat, 99)
	qps := float64(len(lat)) / elapsed

	fmt.Printf("server=%s names=%d qtype=%d concurrency=%d requests=%d\n", *server, len(nameList), *qtype, conc, len(lat))
	fmt.Printf("elapsed_s=%.3f qps=%.1f\n", elapsed, qps)
	fmt.Printf("latency_ms p50=%.3f p95=%.3f p99=%.3f min=%.3f max=%.3f\n", p50, p95, p99, lat[0], lat[len(lat)-1])

	if haveBefore && haveAfter {
		deltaQueries := after.queries - before.queries
		deltaHits := after.hits - before.hits
		ratio := 0.0
		if deltaQueries > 0 {
			ratio = 100 * float64(deltaHits) / float64(deltaQueries)
		}
		fmt.Printf("cache: queries=%d hits=%d hit_ratio=%.1f%%\n", deltaQueries, deltaHits, ratio)
	}
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		out = []string{"bench.test"}
	}
	return out
}

type counts struct {
	queries int64
	hits    int64
}

// fetchCounts best-effort reads the query/hit counters from the admin
// API's stats endpoint. ok is false when adminURL is empty or the
// request fails; the caller simply skips the cache-ratio line.
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

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func buildQuery(name string, qtype uint16) ([]byte, error) {
	p := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 0xBEEF, Flags: uint16(dnsmsg.RDFlag)},
		Questions: []dnsmsg.Question{{Name: name, Type: qtype, Class: uint16(dnsmsg.ClassIN)}},
	}
	return p.Marshal()
}
