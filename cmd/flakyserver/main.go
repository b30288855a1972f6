// Package main provides a deliberately unreliable backend for exercising the
// pipeline. A tunable share of requests fail with 500 and an optional delay
// simulates a slow dependency; both can be changed at runtime via /__control.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type behavior struct {
	mu        sync.Mutex
	failRatio float64       // 0..1 share of requests answered with 500
	delay     time.Duration // added latency per request
	requests  int
	failures  int
}

func (b *behavior) roll() (fail bool, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	fail = rand.Float64() < b.failRatio
	if fail {
		b.failures++
	}
	return fail, b.delay
}

func (b *behavior) set(failRatio float64, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRatio = failRatio
	b.delay = delay
}

func (b *behavior) current() (float64, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failRatio, b.delay
}

func (b *behavior) snapshot() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"fail_ratio": b.failRatio,
		"delay_ms":   b.delay.Milliseconds(),
		"requests":   b.requests,
		"failures":   b.failures,
	}
}

func main() {
	port := flag.Int("port", 3001, "port to listen on")
	failRatio := flag.Float64("fail-ratio", 0.3, "share of requests that return 500")
	delayMs := flag.Int("delay-ms", 0, "added latency per request in milliseconds")
	flag.Parse()

	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", port)
	}

	b := &behavior{
		failRatio: *failRatio,
		delay:     time.Duration(*delayMs) * time.Millisecond,
	}

	// GET /__control reports current behavior and counters.
	// POST /__control?fail_ratio=0.5&delay_ms=100 retunes it.
	http.HandleFunc("/__control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			q := r.URL.Query()
			ratio, delay := b.current()
			if v := q.Get("fail_ratio"); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
					ratio = f
				}
			}
			if v := q.Get("delay_ms"); v != "" {
				if d, err := strconv.Atoi(v); err == nil && d >= 0 {
					delay = time.Duration(d) * time.Millisecond
				}
			}
			b.set(ratio, delay)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.snapshot())
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fail, delay := b.roll()
		if delay > 0 {
			time.Sleep(delay)
		}

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": "simulated failure",
				"path":  r.URL.Path,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"service":   "flaky",
			"path":      r.URL.Path,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("flakyserver listening on %s (fail_ratio=%.2f)", addr, *failRatio)
	log.Fatal(http.ListenAndServe(addr, nil))
}
