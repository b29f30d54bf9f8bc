package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/owlpair/internal/agent"
	"github.com/nao1215/owlpair/internal/config"
	"github.com/nao1215/owlpair/internal/model"
	"github.com/nao1215/owlpair/internal/report"
	"github.com/nao1215/owlpair/internal/society"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Solve a task with an instructor and a solver agent",
		Long: `Run starts a dialogue between two agents. The instructor ("user") breaks
the task into steps and the solver ("assistant") carries them out, fetching
web pages with the built-in crawler when it needs them. The dialogue ends
when the instructor declares the task done (TASK_DONE) or the round limit
is reached.

The task is taken from the arguments or from --task-file. Press Ctrl+C to
stop early; the rounds completed so far are still reported and saved.

Examples:
  # Ask a question that needs web research
  owlpair run "Summarize the release notes at https://go.dev/doc/devel/release"

  # Read the task from a file and ask for a structured final answer
  owlpair run --task-file task.txt --structured

  # Use a local OpenAI-compatible server
  owlpair run --base-url http://localhost:11434/v1 --model llama3.1 "..."

  # Save a Markdown report
  owlpair run -m -o report.md "..."`,
		RunE: runRunCmd,
	}

	f := cmd.Flags()
	f.String("task-file", "", "Read the task from this file")
	f.IntP("rounds", "r", config.DefaultRoundLimit, "Maximum number of dialogue rounds")
	f.Bool("structured", false, "Ask for <analysis> and <final_answer> blocks when the task is done")
	f.String("language", config.DefaultOutputLanguage, "Language both agents must reply in (e.g. Chinese)")
	addCrawlFlags(cmd)

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg, args); err != nil {
		return err
	}

	if err := cfg.ValidateRun(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	return runDialogue(ctx, a, cmd.OutOrStdout())
}

// applyRunFlags reads the run-only flags and the task into cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	f := cmd.Flags()

	var err error
	if cfg.RoundLimit, err = f.GetInt("rounds"); err != nil {
		return err
	}
	if cfg.StructuredAnswer, err = f.GetBool("structured"); err != nil {
		return err
	}
	if cfg.OutputLanguage, err = f.GetString("language"); err != nil {
		return err
	}

	taskFile, err := f.GetString("task-file")
	if err != nil {
		return err
	}
	switch {
	case len(args) > 0 && taskFile != "":
		return errors.New("pass the task either as an argument or with --task-file, not both")
	case taskFile != "":
		data, err := os.ReadFile(taskFile) //nolint:gosec // user-specified path
		if err != nil {
			return fmt.Errorf("failed to read task file: %w", err)
		}
		cfg.Task = strings.TrimSpace(string(data))
	default:
		cfg.Task = strings.TrimSpace(strings.Join(args, " "))
	}
	return nil
}

// runDialogue runs one task to completion and writes its report. The run is
// stored even when it was interrupted or failed.
func runDialogue(ctx context.Context, a *app, stdout io.Writer) error {
	cfg, logger := a.cfg, a.logger

	if cfg.ProxyURL != "" {
		if err := checkProxy(ctx, cfg.ProxyURL); err != nil {
			return err
		}
	}

	webpage := agent.NewWebPageTool(a.pipeline,
		agent.WithCrawlDefaults(cfg.CrawlDepth, cfg.MaxPages),
	)
	tools, err := agent.NewRegistry(webpage)
	if err != nil {
		return err
	}

	factory := &agent.ChatFactory{
		Client: a.client,
		Model:  cfg.Model,
		Tools: map[model.RoleKind]*agent.Registry{
			model.RoleAssistant: tools,
		},
		Options: []agent.ChatOption{
			agent.WithAgentLogger(logger),
			agent.WithAgentMetrics(a.metrics),
		},
	}

	terminal := society.PlainTerminal
	if cfg.StructuredAnswer {
		terminal = society.StructuredTerminal
	}
	orchestrator, err := society.New(cfg.Task, factory,
		society.WithTerminalTemplate(terminal),
		society.WithOutputLanguage(cfg.OutputLanguage),
		society.WithLogger(logger),
		society.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	var runID string
	if a.db != nil {
		runID, err = a.db.BeginRun(ctx, cfg.Task)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}

	logger.Info("starting run",
		"run_id", runID,
		"model", cfg.Model,
		"round_limit", cfg.RoundLimit,
		"structured", cfg.StructuredAnswer,
	)

	startedAt := time.Now()
	result, runErr := orchestrator.Run(ctx, cfg.RoundLimit)
	finishedAt := time.Now()

	if a.db != nil {
		// The run context may already be cancelled; the record must still land
		saveCtx := context.WithoutCancel(ctx)
		if err := a.db.FinishRun(saveCtx, runID, result, runErr); err != nil {
			logger.Error("failed to save run", "run_id", runID, "error", err)
		} else {
			logger.Info("run saved", "run_id", runID)
		}
	}

	rep := report.NewReport(cfg.Task, result)
	rep.RunID = runID
	rep.Model = cfg.Model
	rep.StartedAt = startedAt
	rep.FinishedAt = finishedAt
	if runErr != nil && !result.Interrupted {
		rep.Error = runErr.Error()
	}

	if err := writeReport(cfg, stdout, rep); err != nil {
		return err
	}

	if result.Interrupted {
		fmt.Fprintln(os.Stderr, warnColor("Run interrupted; partial results were reported."))
		return nil
	}
	return runErr
}

// writeReport writes rep in the configured format.
func writeReport(cfg *config.Config, stdout io.Writer, rep *report.Report) error {
	out, closeOut, err := openReportOutput(cfg, stdout)
	if err != nil {
		return err
	}

	writer, err := report.NewWriter(reportFormat(cfg), out, getVersion())
	if err != nil {
		_ = closeOut()
		return err
	}
	if _, err := writer.Write(rep); err != nil {
		_ = closeOut()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return closeOut()
}
