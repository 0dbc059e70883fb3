package worker

import (
	"context"
	"sync"
	"time"

	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

// StaleCanceler cancels Pending enrollments older than a TTL
type StaleCanceler interface {
	CancelStaleEnrollments(ctx context.Context, ttl time.Duration) (int, error)
}

// PendingSweeper periodically cancels enrollments whose checkout was abandoned
type PendingSweeper struct {
	canceler StaleCanceler
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPendingSweeper creates a new sweeper
func NewPendingSweeper(canceler StaleCanceler, ttl, interval time.Duration) *PendingSweeper {
	return &PendingSweeper{
		canceler: canceler,
		ttl:      ttl,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until ctx is canceled or Stop is called
func (w *PendingSweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()
	defer close(done)

	w.logger.Info("Starting pending enrollment sweeper",
		zap.Duration("ttl", w.ttl),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *PendingSweeper) sweep(ctx context.Context) {
	n, err := w.canceler.CancelStaleEnrollments(ctx, w.ttl)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Pending sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		w.logger.Info("Canceled stale pending enrollments", zap.Int("count", n))
	}
}

// Stop stops the sweeper and waits for the running sweep to finish
func (w *PendingSweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	w.logger.Info("Stopping pending enrollment sweeper")
	cancel()
	<-done
}
