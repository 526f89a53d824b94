package services

import (
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
)

// DuplicateGuard remembers signed deposits for a while so the same transaction
// cannot start two pipelines.
type DuplicateGuard struct {
	mu    sync.Mutex
	cache *ttlcache.Cache
}

// NewDuplicateGuard entries expire ttl after they were claimed
func NewDuplicateGuard(ttl time.Duration) *DuplicateGuard {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	cache.SkipTtlExtensionOnHit(true)
	return &DuplicateGuard{cache: cache}
}

// Acquire claims fingerprint for requestID. When it is already claimed the
// owning request id is returned with false.
func (g *DuplicateGuard) Acquire(fingerprint, requestID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if owner, exists := g.cache.Get(fingerprint); exists {
		ownerID, _ := owner.(string)
		return ownerID, false
	}
	g.cache.Set(fingerprint, requestID)
	return requestID, true
}

// Release drops the claim if requestID still owns it
func (g *DuplicateGuard) Release(fingerprint, requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if owner, exists := g.cache.Get(fingerprint); exists && owner == requestID {
		g.cache.Remove(fingerprint)
	}
}

// Close stops the expiry goroutine
func (g *DuplicateGuard) Close() {
	g.cache.Close()
}
