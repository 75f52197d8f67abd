// Package ratelimit bounds invitation creation per (inviter, tree) over a
// rolling window. The authoritative count derives from the activity log, so
// every process sees the same history; a local token bucket in front of it
// damps bursts between store reads so sustained concurrent callers cannot blow
// far past the ceiling.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/grovekit/grove/internal/domain/activity"
)

// ActivityCounter counts audit entries within a window.
type ActivityCounter interface {
	CountSince(ctx context.Context, treeID, actorID string, action activity.Action, since time.Time) (int, error)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is the invitation-creation rate limiter.
type Limiter struct {
	counter ActivityCounter
	ceiling int
	window  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a limiter allowing ceiling creations per (inviter, tree) within
// the trailing window.
func New(counter ActivityCounter, ceiling int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		counter: counter,
		ceiling: ceiling,
		window:  window,
		logger:  logger,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether the principal may create another invitation for the
// tree. The local bucket check need not be atomic with the subsequent create;
// an occasional off-by-one overshoot under extreme concurrency is acceptable.
func (l *Limiter) Allow(ctx context.Context, principalID, treeID string) (bool, error) {
	if l.ceiling <= 0 {
		return false, nil
	}

	count, err := l.counter.CountSince(ctx, treeID, principalID, activity.ActionInvitationCreated, time.Now().Add(-l.window))
	if err != nil {
		return false, err
	}
	if count >= l.ceiling {
		return false, nil
	}

	if !l.bucketFor(principalID, treeID).Allow() {
		l.logger.Debug("local burst guard tripped", "principal_id", principalID, "tree_id", treeID)
		return false, nil
	}
	return true, nil
}

func (l *Limiter) bucketFor(principalID, treeID string) *rate.Limiter {
	key := principalID + "|" + treeID

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		b.lastSeen = time.Now()
		return b.limiter
	}

	if len(l.buckets) >= maxIdleBuckets {
		l.evictIdle()
	}

	limiter := rate.NewLimiter(rate.Limit(float64(l.ceiling)/l.window.Seconds()), l.ceiling)
	l.buckets[key] = &bucket{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

const maxIdleBuckets = 4096

// evictIdle drops buckets idle longer than the window. Called with mu held.
func (l *Limiter) evictIdle() {
	cutoff := time.Now().Add(-l.window)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
