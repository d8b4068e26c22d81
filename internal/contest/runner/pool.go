package runner

import (
	"context"
	"time"

	appErr "contestoj/pkg/errors"
)

func (r *Runner) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("judge worker pool is full")
	}
}

func (r *Runner) releaseSlot() {
	select {
	case <-r.sem:
	default:
	}
}

// ComputePoolBackoff doubles base per retry, capped at max.
func ComputePoolBackoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if max > 0 && delay > max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
