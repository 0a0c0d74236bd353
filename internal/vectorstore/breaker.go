package vectorstore

import (
	"sync"
	"time"
)

// breakerCooldown is how long an open breaker rejects calls before letting
// one through again.
const breakerCooldown = 30 * time.Second

// breaker opens after threshold consecutive transient failures and closes
// again after cooldown or on the next success.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures int
	lastFail time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	if b.now().Sub(b.lastFail) > b.cooldown {
		b.failures = 0
		return true
	}
	return false
}

func (b *breaker) failure() {
	b.mu.Lock()
	b.failures++
	b.lastFail = b.now()
	b.mu.Unlock()
}

func (b *breaker) success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}
