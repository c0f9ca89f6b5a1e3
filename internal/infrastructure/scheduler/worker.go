package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncline/backend/internal/application/writesync"
	"github.com/syncline/backend/internal/infrastructure/config"
)

// Runner executes one write queue drain pass
type Runner interface {
	Run(ctx context.Context) (*writesync.RunStats, error)
}

// SyncWorker drives the write sync service on a fixed interval. Each tick
// takes the run lock, drains one batch of due items, and releases the lock.
// Ticks that find another holder active are skipped.
type SyncWorker struct {
	runner   Runner
	lock     RunLock
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSyncWorker creates a sync worker
func NewSyncWorker(runner Runner, lock RunLock, cfg config.WorkerConfig, logger *zap.Logger) *SyncWorker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	lockTTL := cfg.RunLockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &SyncWorker{
		runner:   runner,
		lock:     lock,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

// Start starts the worker loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = true
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.runLoop(ctx)

	w.logger.Info("Sync worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("lock_ttl", w.lockTTL),
	)
	return nil
}

// Stop stops the worker loop and waits for an in-flight pass to finish
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.logger.Info("Sync worker stopped")
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	// Drain once at startup so a restart does not wait a full interval
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one pass under the run lock
func (w *SyncWorker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	acquired, err := w.lock.TryAcquire(ctx, w.lockTTL)
	if err != nil {
		w.logger.Error("failed to acquire run lock", zap.Error(err))
		return
	}
	if !acquired {
		w.logger.Debug("run lock held elsewhere, skipping pass")
		return
	}
	defer func() {
		// Release with a fresh context so shutdown does not leak the lock
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.lock.Release(releaseCtx); err != nil {
			w.logger.Error("failed to release run lock", zap.Error(err))
		}
	}()

	stats, err := w.runner.Run(ctx)
	if err != nil {
		w.logger.Error("write sync pass failed", zap.Error(err))
		return
	}
	if stats.Claimed > 0 {
		w.logger.Info("write sync pass finished",
			zap.Int("claimed", stats.Claimed),
			zap.Int("completed", stats.Completed),
			zap.Int("retried", stats.Retried),
			zap.Int("dead", stats.Dead),
			zap.Int("conflicted", stats.Conflicted),
		)
	}
}
