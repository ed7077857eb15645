package runner

import (
	"context"

	"dca-grid-backtest-go/internal/backtest"
	"dca-grid-backtest-go/internal/logger"
	"dca-grid-backtest-go/internal/models"

	"golang.org/x/sync/errgroup"
)

// Job is one independent single-symbol backtest: a request plus its bars.
// Jobs share no state, so a batch can fan out across workers while each run
// stays single-threaded and deterministic.
type Job struct {
	Request backtest.Request
	Bars    []models.Bar
}

// RunAll executes the jobs across at most workers goroutines and returns
// the results in job order. Cancellation is cooperative between runs: a run
// already started finishes, runs not yet started are skipped. The first
// error cancels the batch.
func RunAll(ctx context.Context, jobs []Job, workers int) ([]*backtest.Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*backtest.Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			// A run is never aborted mid-day; only refuse to start new ones.
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := backtest.Run(job.Request, job.Bars)
			if err != nil {
				logger.S().Errorf("Backtest %s failed: %v", job.Request.Symbol, err)
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
