// main.go - Load testing tool for the /track endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"heatmap/internal/events"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL        string
	SiteID         string
	Concurrency    int
	Duration       time.Duration
	BatchesPerSec  int
	EventsPerBatch int
	Timeout        time.Duration
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
}

// PerfStats holds statistics about the performance test
type PerfStats struct {
	mu            sync.Mutex
	Total         int64
	Failed        int64
	StatusCodes   map[int]int64
	ResponseTimes []time.Duration
	StartTime     time.Time
	EndTime       time.Time
}

// trackPayload mirrors the body the browser collector sends.
type trackPayload struct {
	SiteID string              `json:"siteId"`
	URL    string              `json:"url"`
	Events []events.EventInput `json:"events"`
}

var samplePaths = []string{
	"header#top > nav > a",
	"button#signup",
	"html > body > main > section > h1",
	"html > body > main > section > p > span",
	"div > span",
	"footer#site-footer > a",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8888", "Base URL of the server")
	siteID := flag.String("site", "perftest", "Site id to send events for")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	rate := flag.Int("rate", 0, "Target batches per second (0 = unlimited)")
	batchSize := flag.Int("events", 5, "Events per batch")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := &PerfConfig{
		BaseURL:        *baseURL,
		SiteID:         *siteID,
		Concurrency:    *concurrency,
		Duration:       *duration,
		BatchesPerSec:  *rate,
		EventsPerBatch: *batchSize,
		Timeout:        *timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	testCtx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	logger.Info("Starting load test",
		slog.String("target", config.BaseURL+"/track"),
		slog.Int("concurrency", config.Concurrency),
		slog.Duration("duration", config.Duration),
		slog.Int("rate", config.BatchesPerSec))

	stats := &PerfStats{StatusCodes: make(map[int]int64), StartTime: time.Now()}
	if err := runTest(testCtx, config, stats); err != nil {
		logger.Error("Load test aborted", slog.Any("error", err))
		os.Exit(1)
	}
	stats.EndTime = time.Now()

	printResults(os.Stdout, stats)
}

// runTest runs the workers until ctx is done.
func runTest(ctx context.Context, config *PerfConfig, stats *PerfStats) error {
	var interval time.Duration
	if config.BatchesPerSec > 0 {
		perWorker := float64(config.BatchesPerSec) / float64(config.Concurrency)
		interval = time.Duration(float64(time.Second) / perWorker)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < config.Concurrency; i++ {
		workerID := i
		g.Go(func() error {
			client := &http.Client{Timeout: config.Timeout}
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return nil
					}
				} else if ctx.Err() != nil {
					return nil
				}

				stats.record(sendBatch(ctx, client, config, rng))
			}
		})
	}
	return g.Wait()
}

// sendBatch posts one batch of synthetic clicks.
func sendBatch(ctx context.Context, client *http.Client, config *PerfConfig, rng *rand.Rand) Result {
	body, err := json.Marshal(generatePayload(config, rng))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.BaseURL+"/track", bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}
	// Same content type sendBeacon uses.
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}
		}
		return Result{Duration: elapsed, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return Result{Duration: elapsed, StatusCode: resp.StatusCode}
}

// generatePayload builds a batch of click events on random sample paths.
func generatePayload(config *PerfConfig, rng *rand.Rand) trackPayload {
	now := time.Now().UnixMilli()
	inputs := make([]events.EventInput, 0, config.EventsPerBatch)
	for i := 0; i < config.EventsPerBatch; i++ {
		x := float64(rng.IntN(1280))
		y := float64(rng.IntN(2400))
		inputs = append(inputs, events.EventInput{
			Type:      events.EventTypeClick,
			Path:      samplePaths[rng.IntN(len(samplePaths))],
			X:         &x,
			Y:         &y,
			Timestamp: now,
		})
	}
	return trackPayload{
		SiteID: config.SiteID,
		URL:    "https://perftest.local/",
		Events: inputs,
	}
}

func (s *PerfStats) record(r Result) {
	// Requests cut short by the end of the test are not counted.
	if r.StatusCode == 0 && r.Error == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Total++
	if r.Error != nil || r.StatusCode >= 400 {
		s.Failed++
	}
	if r.StatusCode != 0 {
		s.StatusCodes[r.StatusCode]++
	}
	s.ResponseTimes = append(s.ResponseTimes, r.Duration)
}

// percentile returns the p-th percentile (0-100) of sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}

func printResults(w io.Writer, s *PerfStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	times := append([]time.Duration(nil), s.ResponseTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	elapsed := s.EndTime.Sub(s.StartTime)
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(s.Total) / elapsed.Seconds()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Requests\t%d\n", s.Total)
	fmt.Fprintf(tw, "Failed\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Throughput\t%.1f req/s\n", throughput)
	fmt.Fprintf(tw, "p50\t%v\n", percentile(times, 50))
	fmt.Fprintf(tw, "p95\t%v\n", percentile(times, 95))
	fmt.Fprintf(tw, "p99\t%v\n", percentile(times, 99))

	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(tw, "HTTP %d\t%d\n", code, s.StatusCodes[code])
	}
	tw.Flush()
}
