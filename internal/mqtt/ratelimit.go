package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// rateLimiter admits at most limit messages per interval and counts
// the rest as dropped. The hot path is lock-free.
type rateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *rateLimiter {
	return &rateLimiter{limit: limit, interval: interval, logger: logger}
}

// run resets the window every interval until ctx ends, reporting how
// many messages the closing window dropped.
func (r *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reset()
		}
	}
}

func (r *rateLimiter) reset() {
	count := r.count.Swap(0)
	if dropped := r.dropped.Swap(0); dropped > 0 {
		r.logger.Warn("mqtt messages dropped by rate limit",
			"received", count,
			"dropped", dropped,
			"limit", r.limit,
			"interval", r.interval,
		)
	}
}

// allow reports whether one more message fits in the current window.
func (r *rateLimiter) allow() bool {
	if r.count.Add(1) > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
