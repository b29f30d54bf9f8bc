package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/owlpair/internal/config"
	"github.com/nao1215/owlpair/internal/database"
	"github.com/nao1215/owlpair/internal/model"
	"github.com/nao1215/owlpair/internal/report"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs",
		Long: `History lists the runs stored in the database, newest first.

Runs are stored by 'owlpair run' unless --no-save is given. A run can be
referred to by any unique prefix of its ID.

Examples:
  # List the latest runs
  owlpair history

  # Show the full transcript of a run
  owlpair history show 3f2a

  # Export a run as Markdown
  owlpair history show -m -o run.md 3f2a

  # Delete a run
  owlpair history delete 3f2a`,
		Args: cobra.NoArgs,
		RunE: runHistoryListCmd,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the run history database")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output the list in JSON format")

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShowCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDeleteCmd,
	}
}

// openHistoryDB opens the existing database named by --db-dir.
func openHistoryDB(cmd *cobra.Command) (*database.RunDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database (has 'owlpair run' been used yet?): %w", err)
	}
	return db, nil
}

// runHistoryListCmd lists stored runs.
func runHistoryListCmd(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		return outputRunListJSON(cmd.OutOrStdout(), runs)
	}
	return outputRunListText(cmd.OutOrStdout(), runs)
}

// runListEntry is the JSON form of a stored run.
type runListEntry struct {
	ID               string `json:"id"`
	Task             string `json:"task"`
	Status           string `json:"status"`
	Rounds           int    `json:"rounds"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	StartedAt        string `json:"started_at"`
	FinishedAt       string `json:"finished_at,omitempty"`
	Error            string `json:"error,omitempty"`
}

func outputRunListJSON(w io.Writer, runs []database.RunRecord) error {
	entries := make([]runListEntry, 0, len(runs))
	for _, r := range runs {
		e := runListEntry{
			ID:               r.ID,
			Task:             r.Task,
			Status:           string(r.Status),
			Rounds:           r.Rounds,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			StartedAt:        r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			Error:            r.Error,
		}
		if !r.FinishedAt.IsZero() {
			e.FinishedAt = r.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		entries = append(entries, e)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func outputRunListText(w io.Writer, runs []database.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in the database.")
		fmt.Fprintln(w, "\nUse 'owlpair run <task>' to start one.")
		return nil
	}

	fmt.Fprintf(w, "Stored runs (%d):\n\n", len(runs))
	fmt.Fprintf(w, "  %-8s  %-19s  %-11s  %-6s  %s\n", "ID", "Started", "Status", "Rounds", "Task")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 72))
	for _, r := range runs {
		fmt.Fprintf(w, "  %-8s  %-19s  %-11s  %-6d  %s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatStatus(r.Status),
			r.Rounds,
			firstLine(r.Task, 40),
		)
	}
	fmt.Fprintln(w, "\nUse 'owlpair history show <id>' to see a run's transcript.")
	return nil
}

// formatStatus pads before coloring so escape codes do not break alignment.
func formatStatus(s database.RunStatus) string {
	text := fmt.Sprintf("%-11s", s)
	switch s {
	case database.StatusCompleted:
		return successColor(text)
	case database.StatusInterrupted:
		return warnColor(text)
	case database.StatusFailed:
		return errorColor(text)
	default:
		return infoColor(text)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// firstLine returns the first line of s, cut to maxRunes runes.
func firstLine(s string, maxRunes int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes-3]) + "..."
}

// runHistoryShowCmd writes the report of one stored run.
func runHistoryShowCmd(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfig()
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	rep, err := loadStoredReport(cmd.Context(), db, args[0])
	if err != nil {
		return err
	}
	return writeReport(cfg, cmd.OutOrStdout(), rep)
}

// loadStoredReport rebuilds the report of the run whose ID starts with prefix.
func loadStoredReport(ctx context.Context, db *database.RunDB, prefix string) (*report.Report, error) {
	run, err := db.FindRun(ctx, prefix)
	if err != nil {
		return nil, historyLookupError(prefix, err)
	}

	transcript, err := db.Transcript(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	rep := report.NewReport(run.Task, model.RunResult{
		Answer:      run.Answer,
		FinalAnswer: run.FinalAnswer,
		Transcript:  transcript,
		Usage:       run.Usage(),
		Rounds:      run.Rounds,
		Interrupted: run.Status == database.StatusInterrupted,
	})
	rep.RunID = run.ID
	rep.StartedAt = run.StartedAt
	rep.FinishedAt = run.FinishedAt
	if run.Status == database.StatusFailed {
		rep.Error = run.Error
	}
	return rep, nil
}

// runHistoryDeleteCmd deletes one stored run.
func runHistoryDeleteCmd(cmd *cobra.Command, args []string) error {
	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.FindRun(cmd.Context(), args[0])
	if err != nil {
		return historyLookupError(args[0], err)
	}
	if err := db.DeleteRun(cmd.Context(), run.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successColor("Deleted run"), run.ID)
	return nil
}

func historyLookupError(prefix string, err error) error {
	switch {
	case errors.Is(err, database.ErrRunNotFound):
		return fmt.Errorf("%w: %q (use 'owlpair history' to list runs)", database.ErrRunNotFound, prefix)
	case errors.Is(err, database.ErrAmbiguousRunID):
		return fmt.Errorf("%w: %q matches more than one run, use a longer prefix", database.ErrAmbiguousRunID, prefix)
	default:
		return fmt.Errorf("failed to look up run: %w", err)
	}
}
