package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nao1215/owlpair/internal/agent"
	"github.com/nao1215/owlpair/internal/config"
	"github.com/nao1215/owlpair/internal/crawler"
	"github.com/nao1215/owlpair/internal/database"
	"github.com/nao1215/owlpair/internal/extract"
	owllog "github.com/nao1215/owlpair/internal/log"
	"github.com/nao1215/owlpair/internal/metrics"
	"github.com/nao1215/owlpair/internal/pipeline"
	"github.com/nao1215/owlpair/internal/report"
	"github.com/nao1215/owlpair/internal/transport"
)

// Terminal colors are disabled automatically when stdout is not a TTY.
func successColor(s string) string { return color.GreenString("%s", s) }
func warnColor(s string) string { return color.YellowString("%s", s) }
func errorColor(s string) string { return color.RedString("%s", s) }
func infoColor(s string) string { return color.CyanString("%s", s) }

// addCrawlFlags registers the flags shared by run and crawl.
func addCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page fetch and image download")
	f.IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum link depth followed from a seed")
	f.IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages collected per seed")
	f.Int("concurrency", config.DefaultConcurrency,
		"Maximum in-flight page fetches and image downloads")
	f.StringArray("include", nil,
		"Only fetch URLs matching one of these regular expressions")
	f.StringArray("exclude", nil,
		"Never fetch URLs matching one of these regular expressions")
	f.Int("max-images", config.DefaultMaxImages,
		"Maximum number of captioned images per page")
	f.Duration("crawl-delay", config.DefaultCrawlDelay,
		"Pause between fetch waves")
	f.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent by the crawler")
	f.Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	f.String("proxy", "",
		"Route crawler traffic through a SOCKS5 proxy (socks5://host:port)")
	f.String("cache-dir", config.XDGCacheDir(),
		"Directory for downloaded images")

	// Model flags; crawl uses them for image captions
	f.String("model", config.DefaultModel, "Chat model name")
	f.String("vision-model", "", "Model used for image captions (default: --model)")
	f.String("base-url", config.DefaultBaseURL, "OpenAI-compatible API base URL")
	f.String("api-key", "", "API key (default: $OWLPAIR_API_KEY or $OPENAI_API_KEY)")
	f.Duration("model-timeout", config.DefaultModelTimeout, "Timeout for each chat completion")

	f.StringP("config", "c", "",
		"Configuration file path (default: .owlpair in current or home directory)")

	// Report flags
	f.BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	f.StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	f.String("db-dir", config.XDGDataDir(), "Directory of the run history database")
	f.Bool("no-save", false, "Do not store results in the run history database")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

func getJSONLogFlag(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool("log-json")
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from the shared crawl flags and the config file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	f := cmd.Flags()

	var err error
	if cfg.Timeout, err = f.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlDepth, err = f.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = f.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = f.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.IncludePatterns, err = f.GetStringArray("include"); err != nil {
		return nil, err
	}
	if cfg.ExcludePatterns, err = f.GetStringArray("exclude"); err != nil {
		return nil, err
	}
	if cfg.MaxImages, err = f.GetInt("max-images"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = f.GetDuration("crawl-delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = f.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = f.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ProxyURL, err = f.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.CacheDir, err = f.GetString("cache-dir"); err != nil {
		return nil, err
	}
	if cfg.Model, err = f.GetString("model"); err != nil {
		return nil, err
	}
	if cfg.VisionModel, err = f.GetString("vision-model"); err != nil {
		return nil, err
	}
	if cfg.BaseURL, err = f.GetString("base-url"); err != nil {
		return nil, err
	}
	if cfg.APIKey, err = f.GetString("api-key"); err != nil {
		return nil, err
	}
	if cfg.ModelTimeout, err = f.GetDuration("model-timeout"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = f.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = f.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = f.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = f.GetString("db-dir"); err != nil {
		return nil, err
	}
	noSave, err := f.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.MetricsAddr, err = f.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = f.GetString("config"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.JSONLog = getJSONLogFlag(cmd)

	// An explicit --config must exist; otherwise a missing file means no overrides.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs.Apply(cfg)
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	return cfg, nil
}

// setupLogger creates the sanitizing logger for cfg.
func setupLogger(cfg *config.Config) *slog.Logger {
	return owllog.NewLogger(os.Stderr, owllog.Options{
		Verbose: cfg.Verbose,
		JSON:    cfg.JSONLog,
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// checkProxy verifies that the SOCKS5 proxy accepts connections.
func checkProxy(ctx context.Context, proxyURL string) error {
	if err := transport.CheckProxy(ctx, proxyURL); err != nil {
		return fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)", err, proxyURL)
	}
	return nil
}

// reportFormat maps the report flags to a format.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// openReportOutput returns the report destination and a function closing it.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain page content that should only be readable by the owner
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// app holds the components shared by run and crawl.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Recorder
	client   *agent.Client
	pipeline *pipeline.ExtractionPipeline
	db       *database.RunDB

	metricsServer *http.Server
}

// newApp wires the crawler, extractor and pipeline for cfg. withChat
// creates the completion client even when no API key is configured, for
// local servers that need none. Image captions use the vision model only
// when a client exists and fall back to image metadata otherwise.
func newApp(cfg *config.Config, logger *slog.Logger, withChat bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	apiKey := cfg.ResolveAPIKey()
	if apiKey != "" || withChat {
		client, err := agent.NewClient(cfg.BaseURL, apiKey,
			agent.WithRequestTimeout(cfg.ModelTimeout),
			agent.WithClientLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		a.client = client
	}

	httpClient, err := transport.NewHTTPClient(
		transport.WithTimeout(cfg.Timeout),
		transport.WithProxy(cfg.ProxyURL),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithSiteOverrides(func(u *url.URL) (string, map[string]string) {
			site := cfg.SiteConfigs.SiteConfigForURL(u.String())
			return site.Cookie, site.Headers
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	fetcher := crawler.NewHTTPFetcher(httpClient,
		crawler.WithFetchTimeout(cfg.Timeout),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithFetcherLogger(logger),
	)

	captioners := extract.ChainCaptioner{}
	if a.client != nil {
		captioners = append(captioners, agent.NewVisionCaptioner(a.client, cfg.CaptionModel()))
	}
	captioners = append(captioners, extract.MetadataCaptioner{})

	extractor, err := extract.NewExtractor(cfg.ImageDir(),
		extract.WithHTTPClient(httpClient),
		extract.WithCaptioner(captioners),
		extract.WithMaxImages(cfg.MaxImages),
		extract.WithConcurrency(cfg.Concurrency),
		extract.WithDownloadTimeout(cfg.Timeout),
		extract.WithLogger(logger),
		extract.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	a.pipeline = pipeline.NewExtractionPipeline(fetcher, extractor,
		pipeline.WithSpider(
			crawler.WithConcurrency(cfg.Concurrency),
			crawler.WithDelay(cfg.CrawlDelay),
			crawler.WithLogger(logger),
			crawler.WithMetrics(a.metrics),
		),
		pipeline.WithSiteConfigs(cfg.SiteConfigs),
		pipeline.WithDefaults(cfg.CrawlDepth, cfg.MaxPages),
		pipeline.WithPatterns(cfg.IncludePatterns, cfg.ExcludePatterns),
		pipeline.WithExtractionLogger(logger),
	)

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		logger.Info("database opened", "path", db.Path())
	}

	if cfg.MetricsAddr != "" {
		a.startMetricsServer()
	}

	return a, nil
}

// startMetricsServer serves the recorder's registry until Close.
func (a *app) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", a.cfg.MetricsAddr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.cfg.MetricsAddr)
}

// Close releases the database and stops the metrics server.
func (a *app) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx) //nolint:errcheck // best effort on exit
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}
}
