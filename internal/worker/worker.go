package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Registrar subscribes event handlers on a dispatcher.
type Registrar interface {
	RegisterHandlers()
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notifications Registrar) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()
}

// Sweeper drops expired entries from a local submission cache.
type Sweeper interface {
	Sweep() int
}

// StartCacheSweeper runs Sweep every interval until ctx is done. It returns
// a channel closed once the loop has exited.
func StartCacheSweeper(ctx context.Context, cache Sweeper, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if cache == nil || interval <= 0 {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := cache.Sweep(); removed > 0 {
					logger.Debug("submission cache swept", zap.Int("removed", removed))
				}
			}
		}
	}()
	return done
}
