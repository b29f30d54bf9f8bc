package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/owlpair/internal/model"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names an output format.
type Format string

const (
	// FormatText is the human-readable terminal format.
	FormatText Format = "text"
	// FormatMarkdown is GitHub-flavored Markdown.
	FormatMarkdown Format = "markdown"
	// FormatJSON is indented JSON.
	FormatJSON Format = "json"
)

// ParseFormat parses a format name. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (use text, markdown or json)", ErrUnknownFormat, s)
	}
}

// Report is a dialogue run prepared for output.
type Report struct {
	// RunID is the stored run identifier, if the run was saved.
	RunID string `json:"run_id,omitempty"`

	// Task is the task prompt.
	Task string `json:"task"`

	// Model is the chat model that drove both agents.
	Model string `json:"model,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Error is set when the run ended with an error.
	Error string `json:"error,omitempty"`

	// InstructorName and SolverName label the two sides of the transcript.
	InstructorName string `json:"instructor_name,omitempty"`
	SolverName     string `json:"solver_name,omitempty"`

	// Result is the outcome of the run.
	Result model.RunResult `json:"result"`
}

// NewReport creates a Report for task with the default role names.
func NewReport(task string, result model.RunResult) *Report {
	return &Report{
		Task:           task,
		InstructorName: "user",
		SolverName:     "assistant",
		Result:         result,
	}
}

// Duration returns how long the run took, or zero when unknown.
func (r *Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ToolCallCount returns the number of tool calls over all rounds.
func (r *Report) ToolCallCount() int {
	n := 0
	for _, e := range r.Result.Transcript {
		n += len(e.ToolCalls)
	}
	return n
}

func (r *Report) statusText() string {
	switch {
	case r.Result.Interrupted:
		return "Interrupted (partial results)"
	case r.Error != "":
		return "Error - " + r.Error
	default:
		return "Complete"
	}
}

func (r *Report) instructorLabel() string {
	return displayName(r.InstructorName, "user")
}

func (r *Report) solverLabel() string {
	return displayName(r.SolverName, "assistant")
}

func displayName(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	return cases.Title(language.English).String(name)
}

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs a run report.
	// Returns the number of bytes written and any error encountered.
	Write(r *Report) (int, error)

	// WriteDocument outputs a composite document from the extraction pipeline.
	WriteDocument(doc *model.Document) (int, error)
}

// NewWriter returns the Writer for format. version is embedded in JSON output.
func NewWriter(format Format, output io.Writer, version string) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewTextWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint(), WithVersion(version)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(r *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(r)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteDocument outputs the document to all configured Writers.
func (m *MultiWriter) WriteDocument(doc *model.Document) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteDocument(doc)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString truncates s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
