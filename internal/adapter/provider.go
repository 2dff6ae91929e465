package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"
)

// unhealthyAfter is the number of consecutive failed calls after which the
// active endpoint is reported unhealthy
const unhealthyAfter = 5

// ProviderHealth is a snapshot of the RPC endpoint bookkeeping
type ProviderHealth struct {
	CurrentURL       string        `json:"currentUrl"`
	Endpoints        int           `json:"endpoints"`
	Requests         int64         `json:"requests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess,omitempty"`
	LastFailure      time.Time     `json:"lastFailure,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	Healthy          bool          `json:"healthy"`
	Failovers        int64         `json:"failovers"`
}

// RPCProvider rotates between the configured JSON-RPC endpoints and keeps
// call statistics for the active one
type RPCProvider struct {
	mu        sync.RWMutex
	endpoints []string
	active    int

	requests  int64
	failed    int64
	failovers int64
	latency   time.Duration
	lastOK    time.Time
	lastErr   time.Time
	streak    int
}

// NewRPCProvider takes the primary endpoint and an optional secondary one
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}
	endpoints := []string{primaryURL}
	if secondaryURL != "" && secondaryURL != primaryURL {
		endpoints = append(endpoints, secondaryURL)
	}
	return &RPCProvider{endpoints: endpoints}, nil
}

func (p *RPCProvider) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active]
}

// Failover moves to the next endpoint. It fails when only one is configured.
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) < 2 {
		return fmt.Errorf("no secondary provider configured")
	}
	p.active = (p.active + 1) % len(p.endpoints)
	p.failovers++
	p.streak = 0
	return nil
}

func (p *RPCProvider) RecordSuccess(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests++
	p.latency += elapsed
	p.lastOK = time.Now()
	p.streak = 0
}

func (p *RPCProvider) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests++
	p.failed++
	p.lastErr = time.Now()
	p.streak++
}

// GetHealth returns a snapshot with the active URL redacted
func (p *RPCProvider) GetHealth() *ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h := &ProviderHealth{
		CurrentURL:       redactURL(p.endpoints[p.active]),
		Endpoints:        len(p.endpoints),
		Requests:         p.requests,
		FailedReqs:       p.failed,
		LastSuccess:      p.lastOK,
		LastFailure:      p.lastErr,
		ConsecutiveFails: p.streak,
		Healthy:          p.streak < unhealthyAfter,
		Failovers:        p.failovers,
	}
	if ok := p.requests - p.failed; ok > 0 {
		h.SuccessRate = float64(ok) / float64(p.requests)
		h.AverageLatency = p.latency / time.Duration(ok)
	}
	return h
}

// redactURL keeps scheme and host. Hosted RPC URLs carry the API key in the
// path or query.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if (u.Path == "" || u.Path == "/") && u.RawQuery == "" && u.User == nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host + "/***"
}

var failoverMarkers = []string{
	"rate limit", "too many requests", "429",
	"timeout", "deadline exceeded",
	"connection refused", "connection reset", "no such host",
}

// shouldFailover reports whether err points at the endpoint rather than the call
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range failoverMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
