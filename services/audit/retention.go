package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/search-gateway/repositories"
)

// Pruner periodically deletes attempt log rows older than the retention window
type Pruner struct {
	repo      repositories.AttemptRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewPruner creates a new pruner
func NewPruner(repo repositories.AttemptRepository, retention, interval time.Duration, logger *zap.Logger) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs the prune loop until ctx is cancelled. The first prune runs
// immediately.
func (p *Pruner) Start(ctx context.Context) {
	p.logger.Info("attempt log pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval))

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("attempt log pruner stopped")
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

// PruneOnce deletes every row older than the retention window
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	return p.repo.DeleteOlderThan(ctx, p.now().Add(-p.retention))
}

func (p *Pruner) prune(ctx context.Context) {
	n, err := p.PruneOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to prune attempt log", zap.Error(err))
		}
		return
	}
	if n > 0 {
		p.logger.Info("pruned attempt log", zap.Int64("rows", n))
	}
}
