package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	adminToken  string
	concurrency int
	racers      int
	duration    time.Duration
)

// Metrics
var (
	totalActions     uint64
	approved         uint64 // 200
	alreadyProcessed uint64 // 400 already_processed
	failOther        uint64 // transport errors and any other status or error kind
	doubleApprovals  uint64 // more than one 200 for the same request
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&adminToken, "token", os.Getenv("ADMIN_TOKEN"), "Admin bearer token")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.IntVar(&racers, "racers", 4, "Concurrent approvals fired at each request")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
}

func main() {
	flag.Parse()
	if adminToken == "" {
		log.Fatal("an admin token is required (-token or ADMIN_TOKEN)")
	}
	log.Printf("Starting Benchmark | Workers: %d | Racers: %d | Duration: %s", concurrency, racers, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(i, &wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(n int, wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	username := fmt.Sprintf("bench-%d-%d", n, time.Now().UnixNano())
	resp, err := post(client, "/signup", map[string]any{"username": username, "password": "bench-password"}, "")
	if err != nil {
		log.Printf("worker %d: signup failed: %v", n, err)
		return
	}
	resp.Body.Close()

	for time.Since(start) < duration {
		var created struct {
			RequestID int64 `json:"request_id"`
		}
		resp, err := post(client, "/deposit", map[string]any{"username": username, "amount": 1}, "")
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		err = json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()
		if err != nil || created.RequestID == 0 {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		race(client, created.RequestID)
	}
}

// race fires racers simultaneous approvals at one request. Exactly one may succeed.
func race(client *http.Client, id int64) {
	var (
		wg   sync.WaitGroup
		wins uint64
	)
	gate := make(chan struct{})
	path := fmt.Sprintf("/admin/deposit-action/%d", id)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			resp, err := post(client, path, map[string]any{"action": "approve", "admin_notes": "benchmark"}, adminToken)
			atomic.AddUint64(&totalActions, 1)
			if err != nil {
				atomic.AddUint64(&failOther, 1)
				return
			}
			defer resp.Body.Close()

			switch classify(resp.StatusCode, resp.Body) {
			case outcomeApproved:
				atomic.AddUint64(&approved, 1)
				atomic.AddUint64(&wins, 1)
			case outcomeAlreadyProcessed:
				atomic.AddUint64(&alreadyProcessed, 1)
			default:
				atomic.AddUint64(&failOther, 1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	if atomic.LoadUint64(&wins) > 1 {
		atomic.AddUint64(&doubleApprovals, 1)
	}
}

type outcome int

const (
	outcomeApproved outcome = iota
	outcomeAlreadyProcessed
	outcomeFailed
)

// classify reads an action response. Only a 400 carrying the
// already_processed error kind counts as a lost race.
func classify(status int, body io.Reader) outcome {
	switch status {
	case http.StatusOK:
		return outcomeApproved
	case http.StatusBadRequest:
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(body).Decode(&apiErr); err == nil && apiErr.Error == "already_processed" {
			return outcomeAlreadyProcessed
		}
	}
	return outcomeFailed
}

func post(client *http.Client, path string, payload map[string]any, token string) (*http.Response, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, targetURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalActions)
	ok := atomic.LoadUint64(&approved)
	dup := atomic.LoadUint64(&alreadyProcessed)
	fErr := atomic.LoadUint64(&failOther)
	dbl := atomic.LoadUint64(&doubleApprovals)

	results := map[string]interface{}{
		"duration_sec":      d.Seconds(),
		"total_actions":     total,
		"actions_per_sec":   float64(total) / d.Seconds(),
		"approved":          ok,
		"already_processed": dup,
		"double_approvals":  dbl,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, err := os.Create("results_approvals.json")
	if err != nil {
		log.Printf("unable to write results file: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)

	if dbl > 0 {
		log.Fatalf("%d requests were approved more than once", dbl)
	}
}
