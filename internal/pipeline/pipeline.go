package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/owlpair/internal/crawler"
	"github.com/nao1215/owlpair/internal/model"
)

// DocumentSeparator separates page documents in the composite document.
const DocumentSeparator = "\n\n---\n\n"

// Job carries one seed through the pipeline. Steps read their inputs from
// the job and record their outputs on it.
type Job struct {
	// Seed is the URL the crawl starts from.
	Seed string

	// MaxDepth and MaxPages bound the crawl.
	MaxDepth int
	MaxPages int

	// IncludePatterns and ExcludePatterns filter crawled URLs.
	IncludePatterns []string
	ExcludePatterns []string

	// Pages are the crawled pages in BFS order.
	Pages []*model.Page

	// Stats summarizes the crawl.
	Stats crawler.Stats

	// Documents are the extracted page documents, parallel to Pages.
	Documents []model.PageDocument

	// Content is the composite document.
	Content string

	// PerformedSteps lists the steps that ran.
	PerformedSteps []string

	// Error is the step error that stopped the job, if any.
	Error        error
	ErrorMessage string

	// TimedOut is set when the context ended before the job finished.
	TimedOut bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// NewJob creates a job for seed.
func NewJob(seed string, maxDepth, maxPages int) *Job {
	return &Job{
		Seed:      seed,
		MaxDepth:  maxDepth,
		MaxPages:  maxPages,
		StartedAt: time.Now(),
	}
}

// Document returns the job result as a model.Document.
func (j *Job) Document() *model.Document {
	return &model.Document{
		Seed:      j.Seed,
		Pages:     j.Documents,
		Content:   j.Content,
		CreatedAt: j.FinishedAt,
	}
}

// Step is one stage of the pipeline.
type Step interface {
	// Do executes the step. Returning an error stops the pipeline unless it
	// was created with WithContinueOnError.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The last error is still recorded on the job and
// Execute returns nil.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked before each
// step; a cancelled job is marked TimedOut and the context error returned.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	defer func() {
		job.FinishedAt = time.Now()
	}()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			job.TimedOut = true
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"seed", job.Seed,
		)

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", job.Seed,
				"error", err,
			)

			job.Error = err
			job.ErrorMessage = err.Error()

			if !p.continueOnError {
				return err
			}
		}

		job.PerformedSteps = append(job.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
