// Package ratelimit keeps per-principal request budgets for the gateway:
// a token bucket for request rate, plus caps on in-flight studio requests and
// open live relay sessions.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	// MaxLiveSessions caps concurrent live relay sessions per principal.
	MaxLiveSessions int

	// Bounds for the in-memory principal table.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu      sync.Mutex
	callers map[string]*caller
}

// caller is the budget state of one principal.
type caller struct {
	bucket   *rate.Limiter
	inflight chan struct{}
	live     chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{cfg: cfg, callers: make(map[string]*caller)}
}

// PrincipalKeyFromAPIKey hashes an API key so raw keys never sit in memory
// as map keys or metric labels.
func PrincipalKeyFromAPIKey(apiKey string) string {
	return "k_" + shortHash(apiKey)
}

// PrincipalKeyFromIP buckets anonymous callers by client address.
func PrincipalKeyFromIP(ip string) string {
	return "ip_" + shortHash(ip)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

// Release frees the slot. It is safe to call more than once.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

// Reasons a Decision is denied.
const (
	ReasonRate         = "rate"
	ReasonConcurrency  = "concurrency"
	ReasonLiveSessions = "live_sessions"
)

type Decision struct {
	Allowed    bool
	RetryAfter int // seconds
	Reason     string
	Permit     *Permit
}

func allow(slots chan struct{}) Decision {
	return Decision{Allowed: true, Permit: &Permit{release: func() { <-slots }}}
}

var unlimited = Decision{Allowed: true, Permit: &Permit{}}

// AcquireRequest spends one token from the principal's bucket and reserves
// an in-flight slot. The permit must be released when the request ends.
func (l *Limiter) AcquireRequest(principal string, now time.Time) Decision {
	c := l.lookup(principal, now)

	if c.bucket != nil {
		r := c.bucket.ReserveN(now, 1)
		if !r.OK() {
			return Decision{RetryAfter: 1, Reason: ReasonRate}
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			return Decision{RetryAfter: max(1, int(math.Ceil(delay.Seconds()))), Reason: ReasonRate}
		}
	}

	if l.cfg.MaxConcurrentRequests <= 0 {
		return unlimited
	}
	select {
	case c.inflight <- struct{}{}:
		return allow(c.inflight)
	default:
		return Decision{RetryAfter: 1, Reason: ReasonConcurrency}
	}
}

// AcquireLiveSession reserves one live relay slot. The permit must be
// released when the session ends.
func (l *Limiter) AcquireLiveSession(principal string, now time.Time) Decision {
	c := l.lookup(principal, now)
	if l.cfg.MaxLiveSessions <= 0 {
		return unlimited
	}
	select {
	case c.live <- struct{}{}:
		return allow(c.live)
	default:
		return Decision{RetryAfter: 1, Reason: ReasonLiveSessions}
	}
}

func (l *Limiter) lookup(principal string, now time.Time) *caller {
	if principal == "" {
		principal = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.callers[principal]
	if !ok {
		if len(l.callers) >= l.cfg.MaxEntries {
			l.evictLocked(now)
		}
		c = &caller{
			inflight: make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
			live:     make(chan struct{}, max(1, l.cfg.MaxLiveSessions)),
		}
		if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
			c.bucket = rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)
		}
		l.callers[principal] = c
	}
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
	return c
}

// evictLocked drops idle principals, or one arbitrary principal when none
// has been idle past the TTL.
func (l *Limiter) evictLocked(now time.Time) {
	for k, c := range l.callers {
		c.mu.Lock()
		idle := now.Sub(c.lastSeen) > l.cfg.EntryTTL
		c.mu.Unlock()
		if idle {
			delete(l.callers, k)
		}
	}
	if len(l.callers) < l.cfg.MaxEntries {
		return
	}
	for k := range l.callers {
		delete(l.callers, k)
		return
	}
}
