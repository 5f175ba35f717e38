package application

import (
	"sync"
	"time"
)

// ruleCache holds the most recent rule snapshot so availability checks do not hit the
// store on every request. Writes through AvailabilityService invalidate it; other
// writers become visible once the snapshot expires.
//
// Every Invalidate starts a new generation. A snapshot is only stored under the
// generation it was loaded in, so a load that raced a write cannot bring back the
// pre-write rules.
type ruleCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	rules      []AvailabilityRule
	loaded     bool
	expiresAt  time.Time
	generation uint64
}

func newRuleCache(ttl time.Duration, now func() time.Time) *ruleCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &ruleCache{now: now, ttl: ttl}
}

// Get returns the cached snapshot, and on a miss the generation a fresh load must be
// stored under.
func (c *ruleCache) Get() ([]AvailabilityRule, uint64, bool) {
	if c == nil {
		return nil, 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || c.now().After(c.expiresAt) {
		return nil, c.generation, false
	}
	return cloneRules(c.rules), c.generation, true
}

// Store keeps rules unless the cache was invalidated after generation was read.
func (c *ruleCache) Store(generation uint64, rules []AvailabilityRule) bool {
	if c == nil {
		return false
	}
	cloned := cloneRules(rules)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.rules = cloned
	c.loaded = true
	c.expiresAt = expiry
	return true
}

func (c *ruleCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rules = nil
	c.loaded = false
	c.generation++
	c.mu.Unlock()
}

func cloneRules(rules []AvailabilityRule) []AvailabilityRule {
	if len(rules) == 0 {
		return nil
	}
	out := make([]AvailabilityRule, len(rules))
	copy(out, rules)
	return out
}
