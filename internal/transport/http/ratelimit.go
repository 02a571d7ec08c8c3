package http

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows perMinute messages per minute with bursts of the same
// size. A non-positive limit returns nil, which allows everything.
func newRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func allowMessage(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}
