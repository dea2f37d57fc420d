package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is the in-process fallback used when redis is not
// configured: one token bucket per client key.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*localBucket)}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		per := rate.Every(window / time.Duration(limit))
		b = &localBucket{lim: rate.NewLimiter(per, limit)}
		l.buckets[key] = b
	}
	b.seen = time.Now()

	// Opportunistic sweep of buckets idle for an hour.
	if len(l.buckets) > 10000 {
		cutoff := time.Now().Add(-time.Hour)
		for k, v := range l.buckets {
			if v.seen.Before(cutoff) {
				delete(l.buckets, k)
			}
		}
	}
	return b.lim.Allow(), nil
}
