package journal

import (
	"context"
	"time"
)

// Logger is the logging surface RunRetention needs.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RunRetention prunes entries older than maxAge immediately and then every
// interval until ctx is cancelled. maxAge <= 0 disables pruning.
func RunRetention(ctx context.Context, repo Repository, maxAge, interval time.Duration, logger Logger) {
	if maxAge <= 0 || interval <= 0 {
		return
	}

	prune := func() {
		n, err := repo.PruneBefore(ctx, time.Now().Add(-maxAge))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error("journal prune failed", "error", err)
		case n > 0:
			logger.Info("pruned journal", "deleted", n, "max_age", maxAge.String())
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
