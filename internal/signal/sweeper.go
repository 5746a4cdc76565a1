package signal

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper periodically expires stale signals. Expiry is also enforced lazily
// on every read path, so the sweep interval only bounds how long a dead row
// stays in the table marked active.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *logrus.Logger
}

// NewSweeper creates a sweeper over the signal service.
func NewSweeper(service *Service, interval time.Duration, logger *logrus.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.service.ExpireStale(ctx); err != nil {
				w.logger.WithError(err).Error("expiry sweep failed")
			}
		}
	}
}
