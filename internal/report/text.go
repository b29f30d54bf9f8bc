package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/owlpair/internal/model"
)

// TextWriter outputs human-readable text reports for terminal display.
type TextWriter struct {
	baseWriter

	// verbose includes tool arguments and results.
	verbose bool

	// transcript includes every round, not only the answer.
	transcript bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithVerbose includes tool call arguments and results.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// WithTranscript controls whether rounds are printed. Enabled by default.
func WithTranscript(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.transcript = show
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
		transcript: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report in human-readable format.
func (w *TextWriter) Write(r *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, r)
	if w.transcript {
		w.writeTranscript(&sb, r)
	}
	w.writeAnswer(&sb, r)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteDocument outputs the composite text of the document.
func (w *TextWriter) WriteDocument(doc *model.Document) (int, error) {
	content := strings.TrimRight(doc.Content, "\n")
	if content == "" {
		content = fmt.Sprintf("No readable content could be extracted from %s.", doc.Seed)
	}
	return io.WriteString(w.output, content+"\n")
}

func (w *TextWriter) writeHeader(sb *strings.Builder, r *Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          OWLPAIR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Task:        %s\n", truncateString(oneLine(r.Task), 200))
	if r.RunID != "" {
		fmt.Fprintf(sb, "Run ID:      %s\n", r.RunID)
	}
	if r.Model != "" {
		fmt.Fprintf(sb, "Model:       %s\n", r.Model)
	}
	fmt.Fprintf(sb, "Started:     %s\n", formatTime(r.StartedAt))
	fmt.Fprintf(sb, "Duration:    %s\n", formatDuration(r.Duration()))
	fmt.Fprintf(sb, "Rounds:      %d\n", r.Result.Rounds)
	fmt.Fprintf(sb, "Tool Calls:  %d\n", r.ToolCallCount())
	fmt.Fprintf(sb, "Tokens:      %d prompt / %d completion\n",
		r.Result.Usage.PromptTokens, r.Result.Usage.CompletionTokens)
	fmt.Fprintf(sb, "Status:      %s\n", r.statusText())
	sb.WriteString("\n")
}

func (w *TextWriter) writeTranscript(sb *strings.Builder, r *Report) {
	if len(r.Result.Transcript) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("TRANSCRIPT\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	instructor, solver := r.instructorLabel(), r.solverLabel()
	for _, entry := range r.Result.Transcript {
		fmt.Fprintf(sb, "[Round %d]\n", entry.Round+1)
		fmt.Fprintf(sb, "  %s:\n%s\n", instructor, indent(orDash(entry.UserText), "    "))
		fmt.Fprintf(sb, "  %s:\n%s\n", solver, indent(orDash(entry.AssistantText), "    "))
		for _, call := range entry.ToolCalls {
			status := "ok"
			if call.Error != "" {
				status = "failed: " + call.Error
			}
			fmt.Fprintf(sb, "  [tool] %s (%s)\n", call.Name, status)
			if w.verbose {
				if call.Arguments != "" {
					fmt.Fprintf(sb, "    Arguments: %s\n", call.Arguments)
				}
				if call.Result != "" {
					fmt.Fprintf(sb, "    Result: %s\n", truncateString(oneLine(call.Result), 300))
				}
			}
		}
		sb.WriteString("\n")
	}
}

func (w *TextWriter) writeAnswer(sb *strings.Builder, r *Report) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ANSWER\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if r.Result.FinalAnswer != "" {
		fmt.Fprintf(sb, "Final answer: %s\n\n", r.Result.FinalAnswer)
	}
	if strings.TrimSpace(r.Result.Answer) == "" {
		sb.WriteString("  No answer was produced\n\n")
		return
	}
	sb.WriteString(r.Result.Answer)
	sb.WriteString("\n\n")
}

func (w *TextWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
