package config

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "owlpair"

	// DefaultTimeout bounds each individual HTTP request (page fetch,
	// image download). A slow host yields an empty result, never an error.
	DefaultTimeout = 20 * time.Second

	// DefaultModelTimeout bounds a single chat-completion request.
	DefaultModelTimeout = 3 * time.Minute

	// DefaultCrawlDepth follows the links of the seed page once.
	DefaultCrawlDepth = 1

	// DefaultMaxPages caps the number of pages collected per seed.
	DefaultMaxPages = 20

	// DefaultConcurrency bounds in-flight page fetches and image downloads.
	DefaultConcurrency = 8

	// DefaultBatchSize is the number of seeds crawled concurrently.
	DefaultBatchSize = 4

	// DefaultRoundLimit is the maximum number of dialogue rounds.
	DefaultRoundLimit = 15

	// DefaultMaxImages caps how many images per page are captioned.
	DefaultMaxImages = 20

	// DefaultCrawlDelay is the pause between fetch waves. Zero disables it.
	DefaultCrawlDelay = time.Duration(0)

	// DefaultUserAgent is sent with every crawler request.
	DefaultUserAgent = "Mozilla/5.0 (compatible; owlpair/1.0; +https://github.com/nao1215/owlpair)"

	// DefaultMaxBodySize limits the response body size read per request.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o"

	// DefaultBaseURL is the OpenAI-compatible endpoint used by default.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultOutputLanguage leaves the agents' reply language unconstrained.
	DefaultOutputLanguage = ""
)

// APIKeyEnvVars lists the environment variables consulted, in order,
// when no API key is configured explicitly.
var APIKeyEnvVars = []string{"OWLPAIR_API_KEY", "OPENAI_API_KEY"}

// Config holds all configuration options for owlpair.
// It is populated from CLI flags and the optional config file and passed
// through the application explicitly, never through global state.
type Config struct {
	// Task is the task prompt handed to both agents.
	Task string

	// Seeds are the start URLs for the crawl command.
	Seeds []string

	// Timeout is the per-request timeout for page fetches and image downloads.
	Timeout time.Duration

	// ModelTimeout is the per-request timeout for chat completions.
	ModelTimeout time.Duration

	// CrawlDepth is the maximum link depth. Depth 0 fetches only the seed.
	CrawlDepth int

	// MaxPages is the maximum number of pages collected per seed.
	MaxPages int

	// Concurrency bounds in-flight fetches and image downloads.
	Concurrency int

	// BatchSize is the number of seeds processed concurrently.
	BatchSize int

	// IncludePatterns are regular expressions; when set, a URL must match
	// at least one of them to be fetched.
	IncludePatterns []string

	// ExcludePatterns are regular expressions; a URL matching any of them
	// is never fetched.
	ExcludePatterns []string

	// CacheDir is where downloaded images are stored.
	CacheDir string

	// RoundLimit is the maximum number of dialogue rounds.
	RoundLimit int

	// MaxImages caps how many images per page are captioned.
	MaxImages int

	// CrawlDelay is the pause between fetch waves.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent with crawler requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// ProxyURL optionally routes crawler traffic through a SOCKS5 proxy
	// ("socks5://host:port").
	ProxyURL string

	// Model is the chat model name.
	Model string

	// VisionModel is the model used for image captions. Empty means Model.
	VisionModel string

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string

	// APIKey is the API key for BaseURL. Empty means read from the environment.
	APIKey string

	// APIKeyEnv names an extra environment variable consulted before APIKeyEnvVars.
	APIKeyEnv string

	// StructuredAnswer selects the structured final-answer template that
	// asks for <analysis> and <final_answer> blocks.
	StructuredAnswer bool

	// OutputLanguage, when set, asks both agents to reply in that language.
	OutputLanguage string

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches log output to JSON.
	JSONLog bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .owlpair is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds per-host overrides loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON report output.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory of the SQLite run history.
	DBDir string

	// SaveToDB enables persisting runs and documents.
	SaveToDB bool

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:        DefaultTimeout,
		ModelTimeout:   DefaultModelTimeout,
		CrawlDepth:     DefaultCrawlDepth,
		MaxPages:       DefaultMaxPages,
		Concurrency:    DefaultConcurrency,
		BatchSize:      DefaultBatchSize,
		CacheDir:       XDGCacheDir(),
		RoundLimit:     DefaultRoundLimit,
		MaxImages:      DefaultMaxImages,
		CrawlDelay:     DefaultCrawlDelay,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		Model:          DefaultModel,
		BaseURL:        DefaultBaseURL,
		OutputLanguage: DefaultOutputLanguage,
		DBDir:          XDGDataDir(),
		SaveToDB:       true,
	}
}

// XDGDataDir returns the XDG data directory for owlpair.
// On Linux: ~/.local/share/owlpair
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for owlpair.
// On Linux: ~/.config/owlpair
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for owlpair.
// On Linux: ~/.cache/owlpair
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// ImageDir returns the directory where downloaded images are cached.
func (c *Config) ImageDir() string {
	return filepath.Join(c.CacheDir, "imgs")
}

// ResolveAPIKey returns the configured API key, falling back to APIKeyEnv
// and then the environment variables in APIKeyEnvVars.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	names := APIKeyEnvVars
	if c.APIKeyEnv != "" {
		names = append([]string{c.APIKeyEnv}, names...)
	}
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// CaptionModel returns the model used for image captions.
func (c *Config) CaptionModel() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	return c.Model
}

// Validate checks the options shared by every command.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CrawlDepth < 0 {
		return ErrInvalidCrawlDepth
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxImages < 0 {
		return ErrInvalidMaxImages
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if err := validatePatterns(c.IncludePatterns); err != nil {
		return err
	}
	if err := validatePatterns(c.ExcludePatterns); err != nil {
		return err
	}
	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil || u.Host == "" || !strings.HasPrefix(u.Scheme, "socks5") {
			return ErrInvalidProxyURL
		}
	}
	return nil
}

// ValidateRun checks the options of the run command.
func (c *Config) ValidateRun() error {
	if strings.TrimSpace(c.Task) == "" {
		return ErrNoTask
	}
	if c.RoundLimit <= 0 {
		return ErrInvalidRoundLimit
	}
	if c.ModelTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Model == "" {
		return ErrNoModel
	}
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	return c.Validate()
}

// ValidateCrawl checks the options of the crawl command.
func (c *Config) ValidateCrawl() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	for _, seed := range c.Seeds {
		u, err := url.Parse(seed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidSeed
		}
	}
	return c.Validate()
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return &PatternError{Pattern: p, Err: err}
		}
	}
	return nil
}
