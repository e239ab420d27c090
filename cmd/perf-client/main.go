package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	cashcodev1 "github.com/kkkkikiki/cashcode/internal/api/cashcodev1"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock‑contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64

	mu       sync.Mutex
	outcomes map[string]int64
}

func (r *PerfResult) recordOutcome(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[kind]++
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedUsers     = 500
	baseURL        = "http://localhost:8080"
)

// week is the throwaway draw the run claims against
type week struct {
	key    string
	winner string
	code   string
	users  []string
}

func main() {
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
	client := cashcodev1.NewCashCodeServiceClient(httpClient, baseURL)

	// ─── Week setup ──────────────────────────────────────────────
	w, err := prepareWeek(client, fixedUsers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare week: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Prepared week %s: %d tickets, winner %s\n", w.key, len(w.users), w.winner)

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Cash code claim load test")
	fmt.Println("==========================================")
	fmt.Printf("Week     : %s\n", w.key)
	fmt.Printf("RPS      : %d\n", rps)
	fmt.Printf("Duration : %v\n", duration)
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	result := &PerfResult{outcomes: make(map[string]int64)}
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	trackerDone := make(chan struct{})
	go func() {
		trackP95(latencyChan, result)
		close(trackerDone)
	}()

	// ─── Workers ────────────────────────────────────────────────
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled → exit
					return
				}
				doRequest(client, w, result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)
	<-trackerDone

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed          : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Total requests   : %d\n", result.TotalRequests)
	fmt.Printf("Answered         : %d\n", result.TotalRequests-result.ErrorCount)
	fmt.Printf("Transport errors : %d\n", result.ErrorCount)

	var avgLatency time.Duration
	if answered := result.TotalRequests - result.ErrorCount; answered > 0 {
		avgLatency = time.Duration(result.LatencySum / answered)
	}
	fmt.Printf("Actual RPS       : %.2f\n", float64(result.TotalRequests)/totalDur.Seconds())
	fmt.Printf("Avg latency      : %v\n", avgLatency)
	fmt.Printf("P95 latency      : %v\n", time.Duration(atomic.LoadInt64(&result.P95Latency)))

	kinds := make([]string, 0, len(result.outcomes))
	for k := range result.outcomes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-22s %d\n", k, result.outcomes[k])
	}
	fmt.Println("==========================================")

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("Consistency check")
	fmt.Println("==========================================")
	if err := verifyDataConsistency(client, w, result.SuccessCount); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK: exactly one claim succeeded and the draw is won")
	fmt.Println("==========================================")
}

// prepareWeek opens an unused week far in the future, issues one ticket per
// user and runs its draw.
func prepareWeek(client cashcodev1.CashCodeServiceClient, users int) (*week, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	w := &week{users: make([]string, users)}
	for attempt := 0; ; attempt++ {
		w.key = fmt.Sprintf("%d-W%02d", 2100+rand.IntN(800), 1+rand.IntN(52))
		_, err := client.OpenWeek(ctx, connect.NewRequest(&cashcodev1.OpenWeekRequest{
			WeekKey:     w.key,
			PrizeAmount: decimal.RequireFromString("3.14"),
		}))
		if err == nil {
			break
		}
		if connect.CodeOf(err) != connect.CodeAlreadyExists || attempt >= 5 {
			return nil, fmt.Errorf("open week: %w", err)
		}
	}

	for i := range w.users {
		w.users[i] = fmt.Sprintf("perf-user-%04d", i)
		if _, err := client.IssueTicket(ctx, connect.NewRequest(&cashcodev1.IssueTicketRequest{
			WeekKey: w.key,
			UserID:  w.users[i],
		})); err != nil {
			return nil, fmt.Errorf("issue ticket: %w", err)
		}
	}

	resp, err := client.RunDraw(ctx, connect.NewRequest(&cashcodev1.RunDrawRequest{WeekKey: w.key}))
	if err != nil {
		return nil, fmt.Errorf("run draw: %w", err)
	}
	w.winner = resp.Msg.WinnerID
	w.code = resp.Msg.Code
	return w, nil
}

// doRequest performs a single SubmitClaim RPC and collects metrics. Most
// requests are meant to fail: other users, wrong codes and repeat claims.
func doRequest(client cashcodev1.CashCodeServiceClient, w *week, result *PerfResult, latencyChan chan<- time.Duration) {
	// Use independent context to avoid cancellation when test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	msg := &cashcodev1.SubmitClaimRequest{WeekKey: w.key, UserID: w.winner, Code: w.code}
	switch n := rand.IntN(10); {
	case n < 6:
		msg.UserID = w.users[rand.IntN(len(w.users))]
	case n < 9:
		msg.Code = "WRONGCODE"
	}

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	_, err := client.SubmitClaim(ctx, connect.NewRequest(msg))
	latency := time.Since(start)

	kind := "success"
	if err != nil {
		var cerr *connect.Error
		if !errors.As(err, &cerr) || cerr.Meta().Get(cashcodev1.ErrorKindHeader) == "" {
			atomic.AddInt64(&result.ErrorCount, 1)
			result.recordOutcome("transport_error")
			return
		}
		kind = cerr.Meta().Get(cashcodev1.ErrorKindHeader)
	} else {
		atomic.AddInt64(&result.SuccessCount, 1)
	}
	result.recordOutcome(kind)

	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 maintains a best‑effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := rand.IntN(size * 10); idx < size {
			buf[idx] = lat.Nanoseconds()
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			sorted := make([]int64, len(buf))
			copy(sorted, buf)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			p95Index := int(float64(len(sorted)) * 0.95)
			if p95Index >= len(sorted) {
				p95Index = len(sorted) - 1
			}
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}

// verifyDataConsistency checks that exactly one claim won the draw
func verifyDataConsistency(client cashcodev1.CashCodeServiceClient, w *week, successes int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.GetDraw(ctx, connect.NewRequest(&cashcodev1.GetDrawRequest{WeekKey: w.key}))
	if err != nil {
		return fmt.Errorf("failed to get draw: %w", err)
	}
	draw := resp.Msg.Draw

	fmt.Printf("Week             : %s\n", draw.WeekKey)
	fmt.Printf("Status           : %s\n", draw.Status)
	fmt.Printf("Winner           : %s\n", draw.WinnerID)
	fmt.Printf("Successful claims: %d\n", successes)

	if successes != 1 {
		return fmt.Errorf("expected exactly one successful claim, got %d", successes)
	}
	if draw.Status != "won" {
		return fmt.Errorf("expected draw status won, got %s", draw.Status)
	}
	if draw.WinnerID != w.winner {
		return fmt.Errorf("winner changed from %s to %s", w.winner, draw.WinnerID)
	}
	return nil
}
