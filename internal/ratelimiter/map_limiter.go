package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MapLimiter throttles inbound frames per user. Each user gets a token bucket on first use; buckets
// untouched for idleTTL are swept, at most once per idleTTL, from inside Allow.
type MapLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	users     map[int64]*userBucket
	lastSweep time.Time
}

type userBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// New returns nil when rps or burst is not positive. Every method accepts a nil receiver and then
// lets all frames through, so the limiter can be switched off by config.
func New(rps float64, burst int, idleTTL time.Duration) *MapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MapLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		users:   make(map[int64]*userBucket),
	}
}

func (l *MapLimiter) Allow(userID int64, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSweep.IsZero() {
		l.lastSweep = now
	} else if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweepLocked(now)
	}

	ub := l.users[userID]
	if ub == nil {
		ub = &userBucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = ub
	}
	ub.lastSeen = now
	return ub.tokens.AllowN(now, 1)
}

// Forget drops userID's bucket; the hub calls it on disconnect.
func (l *MapLimiter) Forget(userID int64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.users, userID)
	l.mu.Unlock()
}

// Tracked reports how many users currently hold a bucket.
func (l *MapLimiter) Tracked() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func (l *MapLimiter) sweepLocked(now time.Time) {
	for id, ub := range l.users {
		if now.Sub(ub.lastSeen) > l.idleTTL {
			delete(l.users, id)
		}
	}
	l.lastSweep = now
}
