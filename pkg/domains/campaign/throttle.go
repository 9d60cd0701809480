package campaign

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum gap between any two sends of the process,
// across all campaigns.
type Throttle struct {
	limiter *rate.Limiter
}

func NewThrottle(gap time.Duration) *Throttle {
	limit := rate.Inf
	if gap > 0 {
		limit = rate.Every(gap)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next send may go out.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
