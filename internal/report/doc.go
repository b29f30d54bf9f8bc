// Package report renders dialogue runs and extracted documents.
//
// This package contains writers for different output formats:
//   - TextWriter: human-readable text output for terminal display
//   - MarkdownWriter: Markdown for sharing and documentation
//   - JSONWriter: structured JSON output for tool integration
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
