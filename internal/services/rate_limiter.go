package services

import (
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
	now          func() time.Time
}

func newRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   now(),
		refillPeriod: refillPeriod,
		now:          now,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Refill tokens based on time elapsed
	now := rl.now()
	refillCount := int(now.Sub(rl.lastRefill) / rl.refillPeriod)
	if refillCount > 0 {
		rl.tokens += refillCount * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(refillCount) * rl.refillPeriod)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// GetTokens returns the current number of available tokens
func (rl *RateLimiter) GetTokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

// SenderRateLimiter one bucket per sender public key. Idle buckets expire.
type SenderRateLimiter struct {
	mu           sync.Mutex
	limiters     *ttlcache.Cache
	maxTokens    int
	refillPeriod time.Duration
	now          func() time.Time
}

// NewSenderRateLimiter maxTokens requests per sender, one token back every refillPeriod
func NewSenderRateLimiter(maxTokens int, refillPeriod time.Duration) *SenderRateLimiter {
	limiters := ttlcache.NewCache()
	// A bucket idle this long is full again anyway
	limiters.SetTTL(time.Duration(maxTokens+1) * refillPeriod)
	return &SenderRateLimiter{
		limiters:     limiters,
		maxTokens:    maxTokens,
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

// Allow checks if a request from sender is allowed
func (s *SenderRateLimiter) Allow(sender string) bool {
	s.mu.Lock()
	var limiter *RateLimiter
	if cached, exists := s.limiters.Get(sender); exists {
		limiter = cached.(*RateLimiter)
	} else {
		limiter = newRateLimiter(s.maxTokens, 1, s.refillPeriod, s.now)
		s.limiters.Set(sender, limiter)
	}
	s.mu.Unlock()

	return limiter.Allow()
}

// Close stops the expiry goroutine
func (s *SenderRateLimiter) Close() {
	s.limiters.Close()
}
