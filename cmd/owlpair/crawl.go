package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/owlpair/internal/pipeline"
	"github.com/nao1215/owlpair/internal/report"
)

// NewCrawlCmd creates the crawl subcommand.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl web pages and print their readable content",
		Long: `Crawl fetches each seed URL, follows its links up to --depth hops and
extracts the readable text of every page. Images are downloaded and
captioned with the vision model when an API key is configured, or
described from their metadata otherwise.

This is the same extraction the solver agent uses during a run, which
makes crawl useful for checking what an agent will see.

Examples:
  # Print the content of a single page
  owlpair crawl --depth 0 https://go.dev/doc/

  # Crawl several sites in parallel and save a Markdown report
  owlpair crawl --batch 4 -m -o docs.md https://a.example https://b.example

  # Skip seeds crawled within the last day
  owlpair crawl --skip-recent 24h https://go.dev/blog/`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("batch", "b", 0,
		"Number of seeds crawled concurrently (default: 4 for multiple seeds)")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip seeds with a stored document newer than this age (requires the database)")
	addCrawlFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Seeds = args

	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return err
	}
	if batch > 0 {
		cfg.BatchSize = batch
	}
	skipRecent, err := cmd.Flags().GetDuration("skip-recent")
	if err != nil {
		return err
	}

	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return runCrawl(ctx, a, cmd.OutOrStdout(), skipRecent)
}

// runCrawl crawls every seed and writes one document per seed in input order.
func runCrawl(ctx context.Context, a *app, stdout io.Writer, skipRecent time.Duration) error {
	cfg, logger := a.cfg, a.logger

	if cfg.ProxyURL != "" {
		if err := checkProxy(ctx, cfg.ProxyURL); err != nil {
			return err
		}
	}

	var jobs []*pipeline.Job
	for _, seed := range cfg.Seeds {
		if skipRecent > 0 && a.db != nil {
			recent, err := a.db.HasRecentDocument(ctx, seed, skipRecent)
			if err != nil {
				logger.Warn("failed to check stored documents", "seed", seed, "error", err)
			} else if recent {
				logger.Info("skipping recently crawled seed", "seed", seed, "max_age", skipRecent)
				continue
			}
		}
		jobs = append(jobs, a.pipeline.NewJob(seed, -1, 0))
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, infoColor("All seeds were crawled recently; nothing to do."))
		return nil
	}

	concurrency := 1
	if len(jobs) > 1 {
		concurrency = cfg.BatchSize
	}
	bp := pipeline.NewBatchProcessor(a.pipeline,
		pipeline.WithConcurrency(concurrency),
		pipeline.WithBatchLogger(logger),
	)

	var (
		mu        sync.Mutex
		completed int
	)
	batchErr := bp.ProcessBatchWithCallback(ctx, jobs, func(job *pipeline.Job, _ int) {
		mu.Lock()
		completed++
		done := completed
		mu.Unlock()

		status := successColor("done")
		if job.Error != nil {
			status = warnColor("partial")
		}
		fmt.Fprintf(os.Stderr, "[%d/%d] %s %s (%d pages)\n", done, len(jobs), status, job.Seed, len(job.Pages))

		if a.db == nil || job.Content == "" {
			return
		}
		// Jobs cut short by cancellation are still worth keeping
		if _, err := a.db.SaveDocument(context.WithoutCancel(ctx), *job.Document()); err != nil {
			logger.Error("failed to save document", "seed", job.Seed, "error", err)
		}
	})

	out, closeOut, err := openReportOutput(cfg, stdout)
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(reportFormat(cfg), out, getVersion())
	if err != nil {
		_ = closeOut()
		return err
	}
	for _, job := range jobs {
		if job.TimedOut && job.Content == "" {
			continue
		}
		if _, err := writer.WriteDocument(job.Document()); err != nil {
			_ = closeOut()
			return fmt.Errorf("failed to write document: %w", err)
		}
	}
	if err := closeOut(); err != nil {
		return err
	}

	if batchErr != nil {
		fmt.Fprintln(os.Stderr, warnColor("Crawl interrupted; partial results were reported."))
	}
	return nil
}
