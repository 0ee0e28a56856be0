// Package lifecycle tracks gateway process state read by readiness checks and
// the live relay: when the process started and when shutdown draining began.
package lifecycle

import (
	"sync/atomic"
	"time"
)

type Lifecycle struct {
	started time.Time
	// drainAt is the UnixNano drain start, or 0 while serving.
	drainAt atomic.Int64
}

func New(now time.Time) *Lifecycle {
	return &Lifecycle{started: now}
}

// BeginDrain marks the gateway as draining. Only the first call records the
// time; it reports whether this call started the drain.
func (l *Lifecycle) BeginDrain(now time.Time) bool {
	if l == nil {
		return false
	}
	return l.drainAt.CompareAndSwap(0, now.UnixNano())
}

func (l *Lifecycle) IsDraining() bool {
	return l != nil && l.drainAt.Load() != 0
}

// DrainingFor is zero while the gateway is still serving.
func (l *Lifecycle) DrainingFor(now time.Time) time.Duration {
	if !l.IsDraining() {
		return 0
	}
	return now.Sub(time.Unix(0, l.drainAt.Load()))
}

func (l *Lifecycle) Uptime(now time.Time) time.Duration {
	if l == nil || l.started.IsZero() {
		return 0
	}
	return now.Sub(l.started)
}
