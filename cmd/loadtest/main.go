// Command loadtest drives the search endpoint with concurrent workers and
// prints throughput, latency percentiles and the share of empty answers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"inverted index",
	"full text search",
	"rust programming",
	"redis sets",
	"document frequency",
	"coverage ranking",
	"全文搜索",
	"自然语言处理",
	"机器学习 tutorial",
	"query tokens",
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	partial     bool
	limit       int
	queries     []string
}

type sample struct {
	latency time.Duration
	status  int
	hits    int
	err     error
}

type stats struct {
	mu      sync.Mutex
	samples []sample
}

func (s *stats) record(smp sample) {
	s.mu.Lock()
	s.samples = append(s.samples, smp)
	s.mu.Unlock()
}

type summary struct {
	Total       int
	Errors      int
	ZeroResults int
	Statuses    map[int]int
	Latencies   []time.Duration
}

func (s *stats) summarize() summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := summary{Total: len(s.samples), Statuses: make(map[int]int)}
	for _, smp := range s.samples {
		if smp.err != nil {
			sum.Errors++
			continue
		}
		sum.Statuses[smp.status]++
		if smp.status < 200 || smp.status >= 300 {
			sum.Errors++
			continue
		}
		if smp.hits == 0 {
			sum.ZeroResults++
		}
		sum.Latencies = append(sum.Latencies, smp.latency)
	}
	sort.Slice(sum.Latencies, func(i, j int) bool { return sum.Latencies[i] < sum.Latencies[j] })
	return sum
}

func main() {
	opts := options{queries: defaultQueries}
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.BoolVar(&opts.partial, "partial", true, "use partial (union) matching")
	flag.IntVar(&opts.limit, "limit", 10, "result limit per query")
	flag.Parse()

	fmt.Println("=== Full-text Search Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Partial:     %t\n", opts.partial)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()
	st := run(ctx, opts)
	if !printReport(os.Stdout, st.summarize(), opts.duration) {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) *stats {
	st := &stats{}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var g errgroup.Group
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := opts.queries[i%len(opts.queries)]
				smp := searchOnce(ctx, client, opts, query)
				if ctx.Err() != nil {
					return nil
				}
				st.record(smp)
			}
			return nil
		})
	}
	g.Wait()
	return st
}

func searchOnce(ctx context.Context, client *http.Client, opts options, query string) sample {
	params := url.Values{}
	params.Set("q", query)
	params.Set("partial", strconv.FormatBool(opts.partial))
	params.Set("limit", strconv.Itoa(opts.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.baseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	var body struct {
		TotalHits int `json:"total_hits"`
	}
	if resp.StatusCode == http.StatusOK {
		err = json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	return sample{latency: time.Since(start), status: resp.StatusCode, hits: body.TotalHits, err: err}
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, sum summary, duration time.Duration) bool {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", sum.Total)
	fmt.Fprintf(w, "Errors:          %d\n", sum.Errors)
	fmt.Fprintf(w, "Zero Results:    %d\n", sum.ZeroResults)
	if sum.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(sum.Errors)/float64(sum.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(sum.Total)/duration.Seconds())
	}

	if len(sum.Latencies) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", sum.Latencies[0])
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%-5g %s\n", p, percentile(sum.Latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", sum.Latencies[len(sum.Latencies)-1])
	}

	codes := make([]int, 0, len(sum.Statuses))
	for code := range sum.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, sum.Statuses[code])
	}

	if sum.Total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the search service running?")
		return false
	}
	return true
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
