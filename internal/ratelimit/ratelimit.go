package ratelimit

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket for the HTTP transport.
// It is unrelated to the per-user download quota.
type RateLimiter struct {
	visitors map[string]*Visitor
	rps      int
	burst    int
	mu       sync.Mutex
	logger   zerolog.Logger
}

// Visitor represents a visitor with rate limiting info
type Visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rps, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = rps
	}
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		rps:      rps,
		burst:    burst,
		logger:   zerolog.New(os.Stdout).With().Timestamp().Str("component", "ratelimit").Logger(),
	}
}

// Allow reports whether the client identified by key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Middleware creates a rate limiting middleware keyed by client IP
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.check(c) {
			return
		}
		c.Next()
	}
}

// check applies the limit and writes the 429 response when exceeded
func (rl *RateLimiter) check(c *gin.Context) bool {
	ip := c.ClientIP()
	limiter := rl.getLimiter(ip)

	if !limiter.Allow() {
		rl.logger.Warn().Str("ip", ip).Msg("Rate limit exceeded")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Rate limit exceeded",
			"retry_after": "1s",
		})
		c.Abort()
		return false
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rps))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
	return true
}

// getLimiter gets or creates a limiter for a visitor
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.visitors[key] = &Visitor{
			limiter:  limiter,
			lastSeen: time.Now(),
		}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup removes visitors idle for longer than maxIdle and returns how many were removed
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > maxIdle {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := rl.Cleanup(interval); n > 0 {
				rl.logger.Debug().Int("removed", n).Msg("Cleaned up idle visitors")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Throttler caps the number of requests in flight
type Throttler struct {
	requests chan struct{}
	logger   zerolog.Logger
}

// NewThrottler creates a new throttler
func NewThrottler(maxConcurrent int) *Throttler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Throttler{
		requests: make(chan struct{}, maxConcurrent),
		logger:   zerolog.New(os.Stdout).With().Timestamp().Str("component", "ratelimit").Logger(),
	}
}

// Acquire takes a slot if one is free. Callers must Release a taken slot.
func (t *Throttler) Acquire() bool {
	select {
	case t.requests <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire
func (t *Throttler) Release() {
	<-t.requests
}

// Middleware creates a throttling middleware
func (t *Throttler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Acquire() {
			t.logger.Warn().Msg("Server overloaded")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Server overloaded, please try again later",
			})
			c.Abort()
			return
		}
		defer t.Release()
		c.Next()
	}
}

// IPWhitelist represents a whitelist of IPs that bypass rate limiting
type IPWhitelist struct {
	ips map[string]bool
	mu  sync.RWMutex
}

// NewIPWhitelist creates a new IP whitelist
func NewIPWhitelist(ips ...string) *IPWhitelist {
	w := &IPWhitelist{
		ips: make(map[string]bool),
	}
	for _, ip := range ips {
		w.Add(ip)
	}
	return w
}

// Add adds an IP to the whitelist
func (w *IPWhitelist) Add(ip string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ips[ip] = true
}

// Remove removes an IP from the whitelist
func (w *IPWhitelist) Remove(ip string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ips, ip)
}

// Contains checks if an IP is in the whitelist
func (w *IPWhitelist) Contains(ip string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ips[ip]
}

// Config represents rate limiting configuration
type Config struct {
	Enabled           bool
	RequestsPerSecond int
	Burst             int
	MaxConcurrent     int
	WhitelistedIPs    []string
}

// Manager combines the whitelist, throttler and rate limiter
type Manager struct {
	rateLimiter *RateLimiter
	throttler   *Throttler
	whitelist   *IPWhitelist
	config      Config
}

// NewManager creates a new rate limiting manager
func NewManager(config Config) *Manager {
	return &Manager{
		config:      config,
		rateLimiter: NewRateLimiter(config.RequestsPerSecond, config.Burst),
		throttler:   NewThrottler(config.MaxConcurrent),
		whitelist:   NewIPWhitelist(config.WhitelistedIPs...),
	}
}

// RateLimiter returns the underlying per-client limiter
func (m *Manager) RateLimiter() *RateLimiter {
	return m.rateLimiter
}

// Middleware returns the combined middleware, a pass-through when disabled
func (m *Manager) Middleware() gin.HandlerFunc {
	if !m.config.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if m.whitelist.Contains(c.ClientIP()) {
			c.Next()
			return
		}

		if !m.rateLimiter.check(c) {
			return
		}

		m.throttler.Middleware()(c)
	}
}
