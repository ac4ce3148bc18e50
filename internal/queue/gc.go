package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// purgeTimeout bounds one pass over the dead-letter queue
const purgeTimeout = 2 * time.Minute

// GarbageCollector periodically drops dead-lettered jobs past retention.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a collector that purges through purger every
// interval. A nil purger makes every pass a no-op.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, log *zap.Logger) *GarbageCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
		logger:    log,
	}
}

// Start purges once immediately, then every interval until ctx is cancelled.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gc.pass(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.pass(ctx)
		}
	}
}

func (gc *GarbageCollector) pass(ctx context.Context) {
	if err := gc.collect(ctx); err != nil {
		gc.logger.Warn("dlq_gc_failed", zap.Error(err))
	}
}

func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.dlqPurger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("DLQ purge: %w", err)
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("count", n),
			zap.Duration("retention", gc.retention),
		)
	}
	return nil
}
