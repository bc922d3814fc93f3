// Package middleware provides the gateway HTTP middleware.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	gwerrors "github.com/askdokita/askdokita/internal/errors"
)

// RateLimiter caps requests per client address using a token bucket per
// key. With a limit of n per minute, the bucket starts with a burst of n
// and refills one token every minute/n, so the n+1th request inside a
// minute is rejected.
type RateLimiter struct {
	mu        sync.Mutex
	limits    map[string]*rate.Limiter
	perMinute int
}

// NewRateLimiter creates a rate limiter allowing perMinute requests per key.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limits:    make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)
	rl.limits[key] = limiter
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// RateLimit returns an echo middleware that rejects clients exceeding the
// limit with 429 before any downstream work runs.
func RateLimit(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				err := gwerrors.RateLimitExceeded("too many requests, slow down")
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": err.Message,
					"code":  string(err.Code),
				})
			}
			return next(c)
		}
	}
}
