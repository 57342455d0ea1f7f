package janitor

import (
	"context"
	"time"

	"github.com/nkiryanov/tokenpair/internal/logger"
)

const defaultInterval = time.Hour

type pairDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Removes token pairs whose refresh token expired
// Such pairs can't be used anyway, so it's housekeeping only
type Janitor struct {
	interval time.Duration
	tokens   pairDeleter
	logger   logger.Logger
	now      func() time.Time
}

func New(interval time.Duration, tokens pairDeleter, l logger.Logger) *Janitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Janitor{
		interval: interval,
		tokens:   tokens,
		logger:   l.WithGroup("janitor"),
		now:      time.Now,
	}
}

// Start sweeping every interval until ctx is done
// Returned channel is closed when janitor stopped
func (j *Janitor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	j.logger.Debug("Starting janitor", "interval", j.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("Janitor stopped by context")
				return

			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()

	return idleStopped
}

// Delete expired pairs once, return count of deleted
func (j *Janitor) Sweep(ctx context.Context) int64 {
	deleted, err := j.tokens.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("Failed to delete expired token pairs", "error", err)
		return 0
	}

	if deleted > 0 {
		j.logger.Info("Expired token pairs deleted", "count", deleted)
	}
	return deleted
}
