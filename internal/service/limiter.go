package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused per-user limiter is kept
const idleLimiterTTL = 10 * time.Minute

// ClaimLimiter throttles claim submissions per user
type ClaimLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	users     map[string]*userLimiter
	lastPrune time.Time
	now       func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClaimLimiter allows rps claims per second per user with the given
// burst. A non-positive rps disables throttling and returns nil.
func NewClaimLimiter(rps float64, burst int) *ClaimLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ClaimLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		users: make(map[string]*userLimiter),
		now:   time.Now,
	}
}

// Allow reports whether userID may submit a claim now
func (l *ClaimLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > idleLimiterTTL {
		for id, u := range l.users {
			if now.Sub(u.lastSeen) > idleLimiterTTL {
				delete(l.users, id)
			}
		}
		l.lastPrune = now
	}

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}

// Len returns the number of tracked users
func (l *ClaimLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
