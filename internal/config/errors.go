package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors returned by Config.Validate and its
// command-specific variants. Callers match them with errors.Is.
var (
	// ErrNoTask is returned when the run command gets no task prompt.
	ErrNoTask = errors.New("no task specified: pass the task as an argument or use --task-file")

	// ErrNoSeed is returned when the crawl command gets no start URL.
	ErrNoSeed = errors.New("no seed URL specified")

	// ErrInvalidSeed is returned when a seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL: must be an absolute http or https URL")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCrawlDepth is returned when the crawl depth is negative.
	ErrInvalidCrawlDepth = errors.New("invalid crawl depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency bound is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidRoundLimit is returned when the round limit is not positive.
	ErrInvalidRoundLimit = errors.New("invalid round limit: must be positive")

	// ErrInvalidMaxImages is returned when the image cap is negative.
	ErrInvalidMaxImages = errors.New("invalid max images: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidProxyURL is returned when the proxy is not a socks5:// URL.
	ErrInvalidProxyURL = errors.New("invalid proxy URL: must look like socks5://host:port")

	// ErrInvalidPattern is wrapped by PatternError.
	ErrInvalidPattern = errors.New("invalid URL pattern")

	// ErrNoModel is returned when no chat model is configured.
	ErrNoModel = errors.New("no model specified")

	// ErrNoBaseURL is returned when no API base URL is configured.
	ErrNoBaseURL = errors.New("no API base URL specified")
)

// PatternError reports an include or exclude pattern that does not compile.
type PatternError struct {
	Pattern string
	Err     error
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrInvalidPattern, e.Pattern, e.Err)
}

// Unwrap lets errors.Is match ErrInvalidPattern.
func (e *PatternError) Unwrap() []error {
	return []error{ErrInvalidPattern, e.Err}
}
