package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer closes waiting sessions older than a given age.
type Expirer interface {
	ExpireWaiting(ctx context.Context, age time.Duration) int
}

// Sweeper periodically closes stale waiting sessions. A zero age disables it.
type Sweeper struct {
	expirer  Expirer
	age      time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(expirer Expirer, age, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{expirer: expirer, age: age, interval: interval, logger: logger.Named("sweeper")}
}

// Enabled reports whether a waiting age is configured.
func (s *Sweeper) Enabled() bool {
	return s.age > 0
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.logger.Info("sweeper started", zap.Duration("older_than", s.age), zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass and returns the number of sessions closed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	if !s.Enabled() {
		return 0
	}
	return s.expirer.ExpireWaiting(ctx, s.age)
}
