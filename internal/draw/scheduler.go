package draw

import (
	"context"
	"time"
)

// Schedule runs a draw every interval until ctx is cancelled. Runs never
// overlap within the process; a slow run delays the next tick.
func (e *Engine) Schedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := e.Run(ctx); err != nil && ctx.Err() == nil {
			e.logger.ErrorContext(ctx, "scheduled draw failed", "error", err)
		}
	}
}
