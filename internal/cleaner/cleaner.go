package cleaner

import (
	"context"
	"time"

	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"go.uber.org/zap"
)

// sweepBatchSize bounds how many stale rows one sweep pass claims
const sweepBatchSize = 500

// Cleaner periodically reclaims expired upload sessions and flips expired
// file records. Sweeps run on a bounded worker pool so a slow storage
// backend cannot pile up goroutines.
type Cleaner struct {
	sessions *biz.SessionUseCase
	files    *biz.FileUseCase
	pool     *workerpool.Pool
	interval time.Duration
	logger   *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cleaner. Interval zero falls back to ten minutes.
func New(sessions *biz.SessionUseCase, files *biz.FileUseCase, pool *workerpool.Pool, interval time.Duration, lgr *logger.Logger) *Cleaner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if lgr == nil {
		lgr = logger.L()
	}
	return &Cleaner{
		sessions: sessions,
		files:    files,
		pool:     pool,
		interval: interval,
		logger:   lgr,
	}
}

// Start launches the sweep loop. An immediate first pass reclaims whatever
// accumulated while the process was down.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)

		c.sweep(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx)
			}
		}
	}()

	c.logger.Info("cleaner started", zap.Duration("interval", c.interval))
}

// Stop halts the sweep loop and waits for it to exit
func (c *Cleaner) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.logger.Info("cleaner stopped")
}

func (c *Cleaner) sweep(ctx context.Context) {
	if err := c.pool.Submit(func() {
		removed, err := c.sessions.SweepExpired(ctx, sweepBatchSize)
		if err != nil {
			c.logger.Error("session sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			c.logger.Info("reclaimed expired upload sessions", zap.Int("count", removed))
		}
	}); err != nil {
		c.logger.Warn("failed to submit session sweep", zap.Error(err))
	}

	if err := c.pool.Submit(func() {
		flipped, err := c.files.SweepExpired(ctx, sweepBatchSize)
		if err != nil {
			c.logger.Error("file sweep failed", zap.Error(err))
			return
		}
		if flipped > 0 {
			c.logger.Info("expired file records", zap.Int("count", flipped))
		}
	}); err != nil {
		c.logger.Warn("failed to submit file sweep", zap.Error(err))
	}
}
