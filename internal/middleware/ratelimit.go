package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/auth"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/metrics"
	"github.com/AnshRaj112/serenify-conversations/pkg/clientip"
	"github.com/redis/go-redis/v9"
)

const (
	// RateLimitWindow is the fixed window of the shared counter.
	RateLimitWindow = time.Minute
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting.
	RateLimitKeyPrefix = "ratelimit:"
)

// RateLimiter counts requests per caller (or per IP before a caller is known) in Redis,
// so every instance sees the same budget. Without Redis it falls back to an in-process bucket.
type RateLimiter struct {
	// TrustProxy keys anonymous requests by the forwarded client address.
	TrustProxy bool

	redis     *redis.Client
	perMinute int
	local     *localLimiters
}

func NewRateLimiter(client *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{redis: client, perMinute: perMinute, local: newLocalLimiters(perMinute)}
}

func (l *RateLimiter) key(r *http.Request) string {
	if c, ok := auth.CallerFrom(r.Context()); ok {
		return "user:" + c.UserID
	}
	return "ip:" + clientip.FromRequest(r, l.TrustProxy)
}

// sharedCount increments the caller's counter for the current window.
func (l *RateLimiter) sharedCount(ctx context.Context, key string, now time.Time) (int64, error) {
	window := now.Unix() / int64(RateLimitWindow.Seconds())
	k := fmt.Sprintf("%s%s:%d", RateLimitKeyPrefix, key, window)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*RateLimitWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.key(r)
		now := time.Now()

		allowed := true
		remaining := -1
		if l.redis != nil {
			count, err := l.sharedCount(r.Context(), key, now)
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Warn("Shared rate limit unavailable, using local limiter")
				allowed = l.local.allow(key)
			} else {
				allowed = count <= int64(l.perMinute)
				remaining = l.perMinute - int(count)
			}
		} else {
			allowed = l.local.allow(key)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		if remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(RateLimitWindow.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
