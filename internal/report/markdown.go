package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/owlpair/internal/model"
)

// maxToolResultChars bounds tool results shown in Markdown reports.
const maxToolResultChars = 2000

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r)
	w.writeAnswer(md, r)
	w.writeTranscript(md, r)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteDocument outputs a composite document with a short summary table.
func (w *MarkdownWriter) WriteDocument(doc *model.Document) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1f("Document: %s", doc.Seed)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + doc.Seed + "`"},
			{"Pages", strconv.Itoa(len(doc.Pages))},
			{"Created", formatTime(doc.CreatedAt)},
		},
	})
	md.PlainText("")

	if strings.TrimSpace(doc.Content) == "" {
		md.Note("No readable content could be extracted.")
	} else {
		md.PlainText(doc.Content)
	}
	md.PlainText("")

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *Report) {
	md.H1("owlpair Report")
	md.PlainText("")

	rows := [][]string{
		{"Task", escapeCell(truncateString(r.Task, 200))},
	}
	if r.RunID != "" {
		rows = append(rows, []string{"Run ID", "`" + r.RunID + "`"})
	}
	if r.Model != "" {
		rows = append(rows, []string{"Model", "`" + r.Model + "`"})
	}
	rows = append(rows,
		[]string{"Started", formatTime(r.StartedAt)},
		[]string{"Duration", formatDuration(r.Duration())},
		[]string{"Rounds", strconv.Itoa(r.Result.Rounds)},
		[]string{"Tool Calls", strconv.Itoa(r.ToolCallCount())},
		[]string{"Prompt Tokens", strconv.Itoa(r.Result.Usage.PromptTokens)},
		[]string{"Completion Tokens", strconv.Itoa(r.Result.Usage.CompletionTokens)},
		[]string{"Status", w.getStatusText(r)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(r *Report) string {
	switch {
	case r.Result.Interrupted:
		return "⚠️ " + r.statusText()
	case r.Error != "":
		return "❌ " + escapeCell(r.statusText())
	default:
		return "✅ " + r.statusText()
	}
}

func (w *MarkdownWriter) writeAnswer(md *markdown.Markdown, r *Report) {
	md.H2("Answer")
	md.PlainText("")

	switch {
	case r.Result.Interrupted:
		md.Warning("The run was interrupted. The transcript below is partial.")
		md.PlainText("")
	case r.Error != "":
		md.Cautionf("The run ended with an error: %s", r.Error)
		md.PlainText("")
	}

	if r.Result.FinalAnswer != "" {
		md.Tipf("Final answer: %s", r.Result.FinalAnswer)
		md.PlainText("")
	}

	if strings.TrimSpace(r.Result.Answer) == "" {
		md.Note("No answer was produced.")
	} else {
		md.PlainText(r.Result.Answer)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeTranscript(md *markdown.Markdown, r *Report) {
	md.H2("Transcript")
	md.PlainText("")

	if len(r.Result.Transcript) == 0 {
		md.PlainText("No rounds were recorded.")
		md.PlainText("")
		return
	}

	instructor, solver := r.instructorLabel(), r.solverLabel()
	for _, entry := range r.Result.Transcript {
		md.H3f("Round %d", entry.Round+1)
		md.PlainText("")

		md.PlainTextf("**%s**", instructor)
		md.PlainText("")
		md.PlainText(orDash(entry.UserText))
		md.PlainText("")

		md.PlainTextf("**%s**", solver)
		md.PlainText("")
		md.PlainText(orDash(entry.AssistantText))
		md.PlainText("")

		for _, call := range entry.ToolCalls {
			w.writeToolCall(md, call)
		}
	}
}

func (w *MarkdownWriter) writeToolCall(md *markdown.Markdown, call model.ToolCallRecord) {
	md.H4f("Tool call `%s`", call.Name)
	md.PlainText("")
	if call.Arguments != "" {
		md.CodeBlocks(markdown.SyntaxHighlightJSON, call.Arguments)
		md.PlainText("")
	}
	if call.Error != "" {
		md.Cautionf("Tool failed: %s", call.Error)
		md.PlainText("")
		return
	}
	if call.Result != "" {
		md.Details("Result", truncateString(call.Result, maxToolResultChars))
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [owlpair](https://github.com/nao1215/owlpair)*")
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
