package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig limits websocket upgrades per remote IP.
type RateLimitConfig struct {
	MaxAttempts int           // Upgrades allowed per window; zero disables limiting
	Window      time.Duration // Sliding window (default: 1 minute)
	BlockAfter  int           // Block after this many requests for unknown tasks (default: 10)
	BlockTime   time.Duration // Base block duration (default: 1 minute, doubles each block)
}

// DefaultRateLimitConfig returns the default rate limiting configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 30,
		Window:      time.Minute,
		BlockAfter:  10,
		BlockTime:   time.Minute,
	}
}

// maxBlock caps the exponential block duration.
const maxBlock = time.Hour

// rateLimiter implements a sliding window rate limiter with exponential
// blocking of IPs that keep probing unknown task IDs.
type rateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	now    func() time.Time

	// attempts tracks timestamps of upgrade attempts per IP
	attempts map[string][]time.Time

	// misses counts consecutive requests for unknown tasks per IP
	misses map[string]int

	// blocked maps an IP to the time its block expires
	blocked map[string]time.Time
}

// newRateLimiter returns nil when config.MaxAttempts is not positive.
func newRateLimiter(config RateLimitConfig) *rateLimiter {
	if config.MaxAttempts <= 0 {
		return nil
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.BlockAfter <= 0 {
		config.BlockAfter = 10
	}
	if config.BlockTime <= 0 {
		config.BlockTime = time.Minute
	}

	return &rateLimiter{
		config:   config,
		now:      time.Now,
		attempts: make(map[string][]time.Time),
		misses:   make(map[string]int),
		blocked:  make(map[string]time.Time),
	}
}

// checkResult represents the result of a rate limit check.
type checkResult struct {
	Allowed    bool
	RetryAfter time.Duration // How long until the client can retry
	IsBlocked  bool          // True if blocked for probing unknown tasks
	Reason     string        // Human-readable reason for rejection
}

// retryAfterSeconds renders RetryAfter for the Retry-After header,
// rounded up to a whole second.
func (r checkResult) retryAfterSeconds() string {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}

// check records an attempt when the IP is allowed to connect.
func (rl *rateLimiter) check(ip string) checkResult {
	if rl == nil {
		return checkResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if expiry, isBlocked := rl.blocked[ip]; isBlocked {
		if now.Before(expiry) {
			return checkResult{
				RetryAfter: expiry.Sub(now),
				IsBlocked:  true,
				Reason:     "too many requests for unknown tasks",
			}
		}
		delete(rl.blocked, ip)
	}

	recent := rl.prune(ip, now)
	if len(recent) >= rl.config.MaxAttempts {
		retryAfter := recent[0].Add(rl.config.Window).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return checkResult{
			RetryAfter: retryAfter,
			Reason:     "rate limit exceeded",
		}
	}

	rl.attempts[ip] = append(recent, now)
	return checkResult{Allowed: true}
}

// recordHit resets the miss counter after a request for a known task.
func (rl *rateLimiter) recordHit(ip string) {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.misses, ip)
}

// recordMiss counts a request for an unknown task and reports the block
// duration when the IP crossed the threshold.
func (rl *rateLimiter) recordMiss(ip string) time.Duration {
	if rl == nil {
		return 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.misses[ip]++
	count := rl.misses[ip]
	if count < rl.config.BlockAfter || count%rl.config.BlockAfter != 0 {
		return 0
	}

	// blockTime * 2^(blocks-1)
	blocks := count/rl.config.BlockAfter - 1
	if blocks > 16 {
		blocks = 16
	}
	block := rl.config.BlockTime * time.Duration(1<<blocks)
	if block > maxBlock {
		block = maxBlock
	}

	rl.blocked[ip] = rl.now().Add(block)
	return block
}

// prune drops attempts outside the window. Callers hold rl.mu.
func (rl *rateLimiter) prune(ip string, now time.Time) []time.Time {
	windowStart := now.Add(-rl.config.Window)
	timestamps := rl.attempts[ip]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

// cleanup removes expired entries. Called periodically by the server.
func (rl *rateLimiter) cleanup() {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip := range rl.attempts {
		rl.prune(ip, now)
	}
	for ip, expiry := range rl.blocked {
		if now.After(expiry) {
			delete(rl.blocked, ip)
		}
	}
	for ip := range rl.misses {
		_, isBlocked := rl.blocked[ip]
		_, hasAttempts := rl.attempts[ip]
		if !isBlocked && !hasAttempts {
			delete(rl.misses, ip)
		}
	}
}

// extractIP extracts the client IP from the request. X-Forwarded-For and
// X-Real-IP win over the remote address for reverse proxy setups.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
