package auth

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// Per-key rate limiter pool.
type limiterEntry struct {
	l        *rate.Limiter
	lastSeen atomic.Int64
}

type limiterPool struct {
	m             *xsync.MapOf[string, *limiterEntry]
	rps           float64
	burst         int
	ttl           time.Duration
	cleanupPeriod time.Duration
	startCleanup  sync.Once
	stopOnce      sync.Once
	stopCh        chan struct{}
	now           func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{
		m:             xsync.NewMapOf[string, *limiterEntry](),
		rps:           rps,
		burst:         burst,
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

// get limiter for key, create if missing; start cleanup once
func (p *limiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	e, _ := p.m.LoadOrCompute(key, func() *limiterEntry {
		return &limiterEntry{l: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
	})
	e.lastSeen.Store(p.now().UnixNano())
	return e.l
}

// Allow returns true if the current request is allowed.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Shutdown stops the cleanup goroutine.
func (p *limiterPool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// sweep removes limiters unused for longer than the TTL.
func (p *limiterPool) sweep() {
	cutoff := p.now().Add(-p.ttl).UnixNano()
	p.m.Range(func(k string, e *limiterEntry) bool {
		if e.lastSeen.Load() < cutoff {
			p.m.Delete(k)
		}
		return true
	})
}

func (p *limiterPool) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}
