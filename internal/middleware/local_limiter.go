package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	localCleanupInterval = 5 * time.Minute
	localLimiterTTL      = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// localLimiters is the per-process token bucket used when Redis is not reachable.
// Counts are not shared across instances.
type localLimiters struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	perMinute  int
	cleanupRun bool
}

func newLocalLimiters(perMinute int) *localLimiters {
	return &localLimiters{entries: make(map[string]*limiterEntry), perMinute: perMinute}
}

func (l *localLimiters) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startCleanupOnce()

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute),
		}
		l.entries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter.Allow()
}

func (l *localLimiters) startCleanupOnce() {
	if l.cleanupRun {
		return
	}
	l.cleanupRun = true
	go func() {
		ticker := time.NewTicker(localCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			l.mu.Lock()
			now := time.Now()
			for k, e := range l.entries {
				if now.Sub(e.lastUse) > localLimiterTTL {
					delete(l.entries, k)
				}
			}
			l.mu.Unlock()
		}
	}()
}
