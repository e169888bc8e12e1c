package middleware

import (
	"net/http"
	"sync"
	"time"

	"deskly/pkg/auth"
	"deskly/pkg/logger"
)

// CallerExtractor derives the rate-limit key for a request. The default uses
// the authenticated identity and falls back to the remote address for
// unauthenticated endpoints.
type CallerExtractor func(r *http.Request) string

func DefaultCallerExtractor(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id.UserID
	}
	return r.RemoteAddr
}

type CallerRateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor CallerExtractor
	log       *logger.Logger
	stopCh    chan struct{}
}

func NewCallerRateLimiter(limit int, window time.Duration, extractor CallerExtractor, log *logger.Logger) *CallerRateLimiter {
	limiter := &CallerRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *CallerRateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for caller, timestamps := range rl.requests {
				if len(timestamps) == 0 || time.Since(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, caller)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *CallerRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *CallerRateLimiter) Allow(caller string) bool {
	if caller == "" {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.requests[caller][:0:0]
	for _, ts := range rl.requests[caller] {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[caller] = valid
		return false
	}

	rl.requests[caller] = append(valid, now)
	return true
}

func CallerRateLimit(limiter *CallerRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := limiter.extractor(r)
			if !limiter.Allow(caller) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", requestIDFromContext(r),
					"caller", caller,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
