package recheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

// Runner periodically re-verifies links already marked broken or warning.
// Dismissed links are skipped unconditionally, and the runner yields whenever
// a full scan is active instead of contending with it.
type Runner struct {
	store   linkstore.Store
	scanner *scanner.Scanner
	cfg     config.RecheckConfig
	logger  *zap.Logger
	cron    *cron.Cron
}

func NewRunner(store linkstore.Store, sc *scanner.Scanner, cfg config.RecheckConfig, logger *zap.Logger) *Runner {
	return &Runner{
		store:   store,
		scanner: sc,
		cfg:     cfg,
		logger:  logger.Named("recheck"),
		cron:    cron.New(),
	}
}

// Start schedules the recurring recheck.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.cfg.CronSpec, func() {
		n, err := r.RunBatch(context.Background(), r.cfg.BatchSize)
		if err != nil {
			r.logger.Warn("scheduled recheck failed", zap.Error(err))
			return
		}
		if n > 0 {
			r.logger.Info("scheduled recheck finished", zap.Int("links", n))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid recheck cron spec %q: %w", r.cfg.CronSpec, err)
	}
	r.cron.Start()
	r.logger.Info("recheck schedule started", zap.String("spec", r.cfg.CronSpec))
	return nil
}

// Stop halts the schedule; a batch already in flight finishes on its own.
func (r *Runner) Stop() {
	r.cron.Stop()
}

// RunBatch re-checks up to limit broken/warning links. It returns the number
// of links dispatched; zero with no error when yielding to an active scan.
func (r *Runner) RunBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("recheck batch limit must be positive, got %d", limit)
	}

	if _, err := r.store.ActiveScan(ctx); err == nil {
		r.logger.Debug("scan active, recheck pass yields")
		return 0, nil
	} else if !errors.Is(err, linkstore.ErrNotFound) {
		return 0, err
	}

	links, err := r.store.LinksForRecheck(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(links) == 0 {
		return 0, nil
	}

	r.scanner.RecheckLinks(ctx, links)
	return len(links), nil
}
