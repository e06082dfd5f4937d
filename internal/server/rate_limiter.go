// Package server builds the optional per-connection token bucket that
// throttles relayed messages.
package server

import (
	"golang.org/x/time/rate"
)

// newRateLimiter returns a token bucket allowing cfg.Burst relays per
// cfg.Interval, or nil when limiting is disabled.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 || cfg.Interval <= 0 {
		return nil
	}
	perSecond := float64(cfg.Burst) / cfg.Interval.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), cfg.Burst)
}
