package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/ws/internal/logging"
	"github.com/wesleyorama2/ws/internal/output"
	"github.com/wesleyorama2/ws/ws"
)

// Latencies are recorded in microseconds, from 1µs to 1 minute.
const (
	histogramMin     = 1
	histogramMax     = int64(time.Minute / time.Microsecond)
	histogramSigFigs = 3
)

type benchFlags struct {
	requests    int
	concurrency int
	method      string
	headers     []string
	noColor     bool
}

// benchResult aggregates the outcome of a bench run.
type benchResult struct {
	Requests int64
	Failures int64
	Statuses map[int]int64
	Elapsed  time.Duration

	mu      sync.Mutex
	latency *hdrhistogram.Histogram
}

func newBenchResult() *benchResult {
	return &benchResult{
		Statuses: make(map[int]int64),
		latency:  hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

func (r *benchResult) record(status int, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Requests++
	if err != nil {
		r.Failures++
		return
	}
	r.Statuses[status]++
	// values beyond the histogram range are clamped to its maximum
	_ = r.latency.RecordValue(min(latency.Microseconds(), histogramMax))
}

// Percentile returns the latency at percentile p (0-100).
func (r *benchResult) Percentile(p float64) time.Duration {
	return time.Duration(r.latency.ValueAtQuantile(p)) * time.Microsecond
}

// Throughput is the number of completed requests per second.
func (r *benchResult) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Requests) / r.Elapsed.Seconds()
}

func newBenchCmd(a *app) *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench URL",
		Short: "Send many requests through the shared pool and report latency percentiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBench(cmd, normalizeURL(args[0]), &f)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.requests, "requests", "n", 100, "Total number of requests")
	flags.IntVarP(&f.concurrency, "concurrency", "c", 10, "Number of concurrent workers")
	flags.StringVarP(&f.method, "method", "X", "GET", "HTTP method")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "HTTP header \"Key: Value\" (repeatable)")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (a *app) runBench(cmd *cobra.Command, target string, f *benchFlags) error {
	if f.requests < 1 || f.concurrency < 1 {
		return fmt.Errorf("requests and concurrency must be positive")
	}
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return err
	}

	client, err := a.newClient(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	log := logging.FromContext(cmd.Context()).Named("bench")
	log.Info("starting bench",
		zap.String("url", target),
		zap.Int("requests", f.requests),
		zap.Int("concurrency", f.concurrency),
	)

	result := bench(cmd.Context(), client, target, f.method, headers, f.requests, f.concurrency)

	log.Info("bench finished",
		zap.Int64("failures", result.Failures),
		zap.Duration("elapsed", result.Elapsed),
	)

	writeBenchReport(cmd.OutOrStdout(), target, result, colorDisabled(cmd.OutOrStdout(), f.noColor))

	if result.Failures == result.Requests {
		return fmt.Errorf("all %d requests failed", result.Requests)
	}
	return nil
}

// bench runs n requests over c workers. Each body is drained so the
// connection goes back to the pool for the next request.
func bench(ctx context.Context, client *ws.Client, target, method string, headers map[string]string, n, c int) *benchResult {
	result := newBenchResult()
	jobs := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < c; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if ctx.Err() != nil {
					return
				}
				began := time.Now()
				resp, err := client.URL(target).WithHeaders(headers).Do(ctx, method)
				if err == nil {
					_, err = resp.Bytes()
				}
				status := 0
				if resp != nil {
					status = resp.Status()
				}
				result.record(status, time.Since(began), err)
			}
		}()
	}
	wg.Wait()

	result.Elapsed = time.Since(start)
	return result
}

func writeBenchReport(w io.Writer, target string, r *benchResult, noColor bool) {
	colors := output.DefaultColorScheme()
	if noColor {
		colors = output.NoColorScheme()
	}

	fmt.Fprintf(w, "%s %s\n", colors.Highlight.Sprint("BENCH"), colors.URL.Sprint(target))
	fmt.Fprintf(w, "  Requests:    %d (%d failed)\n", r.Requests, r.Failures)
	fmt.Fprintf(w, "  Elapsed:     %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  Throughput:  %.1f req/s\n", r.Throughput())

	codes := make([]int, 0, len(r.Statuses))
	for code := range r.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  Status %s: %d\n", colors.Status(code).Sprint(code), r.Statuses[code])
	}

	fmt.Fprintln(w, "  Latency:")
	for _, p := range []float64{50, 90, 99} {
		fmt.Fprintf(w, "    p%-3v %s\n", p, r.Percentile(p))
	}
	fmt.Fprintf(w, "    max  %s\n", time.Duration(r.latency.Max())*time.Microsecond)
}
