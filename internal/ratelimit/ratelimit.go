package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limiter enforces a cooldown between accepted job submissions per caller
// origin. Entries older than twice the cooldown are dropped on every Check.
type Limiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	entries  map[string]time.Time
	now      func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(cooldown time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		cooldown: cooldown,
		entries:  map[string]time.Time{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) Cooldown() time.Duration { return l.cooldown }

// Check reports whether origin may submit now. When it may not, the second
// value is the whole seconds left, always at least 1.
func (l *Limiter) Check(origin string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowLocked(origin, l.now())
}

func (l *Limiter) allowLocked(origin string, now time.Time) (bool, int) {
	cutoff := now.Add(-2 * l.cooldown)
	for k, ts := range l.entries {
		if ts.Before(cutoff) {
			delete(l.entries, k)
		}
	}

	last, ok := l.entries[origin]
	if !ok {
		return true, 0
	}
	elapsed := now.Sub(last)
	if elapsed >= l.cooldown {
		return true, 0
	}
	remaining := int(math.Ceil((l.cooldown - elapsed).Seconds()))
	if remaining < 1 {
		remaining = 1
	}
	return false, remaining
}

// Record stamps origin with the current time.
func (l *Limiter) Record(origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[origin] = l.now()
}

// Reservation holds an origin's cooldown slot between Reserve and the
// outcome of the submission.
type Reservation struct {
	l      *Limiter
	origin string
	stamp  time.Time
	prev   time.Time
	hadOld bool
}

// Reserve checks and stamps origin in one step, so concurrent submissions
// from one origin cannot both pass. When not allowed it returns nil and the
// seconds left. Cancel the reservation if the submission is not accepted.
func (l *Limiter) Reserve(origin string) (*Reservation, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if ok, remaining := l.allowLocked(origin, now); !ok {
		return nil, remaining
	}
	prev, had := l.entries[origin]
	l.entries[origin] = now
	return &Reservation{l: l, origin: origin, stamp: now, prev: prev, hadOld: had}, 0
}

// Cancel gives the slot back, restoring the origin's previous stamp. It is a
// no-op once a later stamp has replaced this one.
func (r *Reservation) Cancel() {
	if r == nil {
		return
	}
	l := r.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.entries[r.origin]; !ok || !cur.Equal(r.stamp) {
		return
	}
	if r.hadOld {
		l.entries[r.origin] = r.prev
	} else {
		delete(l.entries, r.origin)
	}
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
