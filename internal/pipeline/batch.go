package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// JobRunner executes one job.
type JobRunner interface {
	Run(ctx context.Context, job *Job) error
}

// BatchProcessor runs jobs concurrently with a bounded number of workers.
type BatchProcessor struct {
	runner JobRunner

	// concurrency is the maximum number of concurrent jobs.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent jobs.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(runner JobRunner, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runner:      runner,
		concurrency: 4,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch runs every job and returns them in input order. A failing
// job records its error and does not stop the others; the returned error
// is the context error when the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, jobs []*Job) ([]*Job, error) {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(jobs),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	err := bp.ProcessBatchWithCallback(ctx, jobs, func(*Job, int) {})

	bp.logger.Info("batch processing complete",
		"total_seeds", len(jobs),
		"elapsed", time.Since(startTime),
	)

	return jobs, err
}

// ProcessBatchWithCallback runs every job and calls callback as each one
// finishes, from the goroutine that ran it. Jobs not started before
// cancellation are marked TimedOut and never reach the callback.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	jobs []*Job,
	callback func(job *Job, index int),
) error {
	g := new(errgroup.Group)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		if ctx.Err() != nil {
			job.TimedOut = true
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				job.TimedOut = true
				return nil
			}

			bp.logger.Info("processing seed",
				"seed", job.Seed,
				"index", i+1,
				"total", len(jobs),
			)

			if err := bp.runner.Run(ctx, job); err != nil {
				if job.Error == nil {
					job.Error = err
					job.ErrorMessage = err.Error()
				}
				bp.logger.Warn("seed failed",
					"seed", job.Seed,
					"error", err,
				)
			}

			callback(job, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers record errors on their job
	return ctx.Err()
}
