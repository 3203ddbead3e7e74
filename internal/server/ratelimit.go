// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// RateLimitConfig configures per-IP token buckets.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of IPs tracked at once; the least recently
	// seen are evicted first.
	MaxVisitors int
}

// ApplyDefaults sets MaxVisitors when unset.
func (c *RateLimitConfig) ApplyDefaults() {
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
}

func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return lecternerr.Errorf(lecternerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return lecternerr.Errorf(lecternerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)", c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return lecternerr.Errorf(lecternerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	return nil
}

const staleVisitor = 10 * time.Minute

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// limiter holds one token bucket per client IP. A nil limiter allows
// everything.
type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// newLimiter returns nil when cfg disables limiting. Otherwise a sweeper
// goroutine runs until done is closed.
func newLimiter(cfg RateLimitConfig, done <-chan struct{}) *limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	l := &limiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-done:
				return
			}
		}
	}()
	return l
}

func (l *limiter) allow(ip string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.cfg.RequestsPerSecond
	b.tokens = min(b.tokens, float64(l.cfg.Burst))
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops stale buckets and enforces MaxVisitors.
func (l *limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	type seen struct {
		ip string
		at time.Time
	}
	live := make([]seen, 0, len(l.buckets))
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleVisitor {
			delete(l.buckets, ip)
			continue
		}
		live = append(live, seen{ip: ip, at: b.lastSeen})
	}

	if l.cfg.MaxVisitors <= 0 || len(live) <= l.cfg.MaxVisitors {
		return
	}
	slices.SortFunc(live, func(a, b seen) int { return a.at.Compare(b.at) })
	evict := len(live) - l.cfg.MaxVisitors
	for _, s := range live[:evict] {
		delete(l.buckets, s.ip)
	}
	slog.Warn("rate limiter visitor cap enforced", "evicted", evict, "max_visitors", l.cfg.MaxVisitors)
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// clientIP strips the port so connections from one host share a bucket.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// rateLimited is a huma operation middleware answering 429 once the
// caller's bucket is empty.
func (s *Server) rateLimited(ctx huma.Context, next func(huma.Context)) {
	ip := clientIP(ctx.RemoteAddr())
	if s.limiter.allow(ip) {
		next(ctx)
		return
	}
	slog.Warn("rate limit exceeded", "ip", ip, "path", ctx.URL().Path)
	ctx.SetHeader("Retry-After", "1")
	if err := huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "rate limit exceeded"); err != nil {
		slog.Warn("writing rate limit response", "error", err)
	}
}
