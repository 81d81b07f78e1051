package middleware

import "time"

func (rm *RateLimiterMiddleware) Sweep(cutoff time.Time) int {
	return rm.sweep(cutoff)
}
