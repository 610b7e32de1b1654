/*
scheduler.go - Automated holiday recalculation scheduler

PURPOSE:
  Periodically re-applies the holiday calendar to every loan so that
  holidays created after disbursement move the installments they land on.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass fans out over loans with a bounded errgroup
  - A failing loan is logged and counted; it never aborts the pass
  - loan.Service.Recalculate only writes when a due date actually moved,
    so repeated passes are no-ops

CONFIGURATION:
  - Interval: How often to run (default: 1 hour, RECALC_INTERVAL)
  - Workers:  Loans recalculated concurrently (default: 4, RECALC_WORKERS)

USAGE:
  scheduler := NewRecalculationScheduler(service, metrics, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Recalculate endpoint (manual, one loan)
  - loan/service.go: Service.Recalculate
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/loan-engine/loan"
	"golang.org/x/sync/errgroup"
)

// RecalculationResult summarizes one pass.
type RecalculationResult struct {
	Checked int
	Changed int
	Failed  int
}

// RecalculationScheduler re-applies holidays to every loan on a ticker.
type RecalculationScheduler struct {
	Service  *loan.Service
	Metrics  *Metrics // optional
	Interval time.Duration
	Workers  int
	Logger   zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecalculationScheduler creates a scheduler with default settings.
func NewRecalculationScheduler(service *loan.Service, metrics *Metrics, logger zerolog.Logger) *RecalculationScheduler {
	return &RecalculationScheduler{
		Service:  service,
		Metrics:  metrics,
		Interval: time.Hour,
		Workers:  4,
		Logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler. A second Start is a no-op.
func (rs *RecalculationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		return
	}
	if rs.Interval <= 0 {
		rs.Logger.Info().Msg("recalculation disabled, not starting")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.Logger.Info().Dur("interval", rs.Interval).Int("workers", rs.Workers).Msg("recalculation scheduler started")
}

// Stop cancels a running pass and waits for the goroutine to exit.
func (rs *RecalculationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.Logger.Info().Msg("recalculation scheduler stopped")
}

func (rs *RecalculationScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.pass(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.pass(ctx)
		case <-rs.stop:
			return
		}
	}
}

func (rs *RecalculationScheduler) pass(ctx context.Context) {
	if _, err := rs.RunOnce(ctx); err != nil && ctx.Err() == nil {
		rs.Logger.Error().Err(err).Msg("recalculation pass failed")
	}
}

// RunOnce recalculates every loan once. Only listing loans or a cancelled
// context returns an error; per-loan failures are counted in Failed.
func (rs *RecalculationScheduler) RunOnce(ctx context.Context) (RecalculationResult, error) {
	started := time.Now()
	loans, err := rs.Service.ListLoans(ctx)
	if err != nil {
		return RecalculationResult{}, fmt.Errorf("list loans: %w", err)
	}

	var changed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(rs.Workers, 1))
	for _, l := range loans {
		l := l
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			moved, err := rs.Service.Recalculate(gctx, l.ID)
			switch {
			case err != nil:
				failed.Add(1)
				rs.Logger.Warn().Err(err).Str("loan_id", string(l.ID)).Msg("recalculation failed")
			case moved:
				changed.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	res := RecalculationResult{
		Checked: len(loans),
		Changed: int(changed.Load()),
		Failed:  int(failed.Load()),
	}
	if rs.Metrics != nil {
		rs.Metrics.RecordRecalculation(res)
	}
	rs.Logger.Info().
		Int("checked", res.Checked).
		Int("changed", res.Changed).
		Int("failed", res.Failed).
		Dur("took", time.Since(started)).
		Msg("recalculation pass complete")
	return res, err
}
