package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medscrape/medcrawl/internal/config"
	"github.com/medscrape/medcrawl/internal/crawler"
	"github.com/medscrape/medcrawl/internal/database"
	"github.com/medscrape/medcrawl/internal/fetcher"
	"github.com/medscrape/medcrawl/internal/handoff"
	"github.com/medscrape/medcrawl/internal/ledger"
	"github.com/medscrape/medcrawl/internal/model"
	"github.com/medscrape/medcrawl/internal/pipeline"
	"github.com/medscrape/medcrawl/internal/report"
	"github.com/medscrape/medcrawl/internal/urlfilter"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl websites from one or more seed URLs",
		Long: `Crawl discovers every page reachable from each seed URL on the seed's host.

Pages already visited within the revisit interval are skipped, so several
crawls sharing a ledger (--ledger sqlite or --ledger redis) never fetch the
same page twice. Fetch failures shrink the result but never stop the crawl.

Environment variables CONCURRENCY_LIMIT, REVISIT_INTERVAL (seconds),
REDIS_URL, KAFKA_BROKER and KAFKA_TOPIC provide defaults that flags override.

Examples:
  # Crawl one site
  medcrawl crawl https://www.example-hospital.org/

  # Crawl several sites, 20 fetches at a time each, for at most 10 minutes
  medcrawl crawl -n 20 --deadline 10m a-clinic.org b-hospital.org

  # Share the ledger with other crawler instances and hand pages to Kafka
  medcrawl crawl --ledger redis --redis-url redis://cache:6379/0 \
    --kafka-broker kafka:9092 https://www.example-hospital.org/

  # Write the discovered URLs as JSON and as a spreadsheet
  medcrawl crawl --json --xlsx urls.xlsx https://www.example-hospital.org/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrencyLimit,
		"Maximum simultaneous fetches per crawl")
	cmd.Flags().DurationP("revisit-interval", "r", config.DefaultRevisitInterval,
		"Skip pages visited within this interval (0 = never revisit)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page fetch")
	cmd.Flags().DurationP("deadline", "D", 0,
		"Stop the whole crawl after this long and report partial results (0 = none)")
	cmd.Flags().Duration("crawl-delay", config.DefaultCrawlDelay,
		"Pause after parsing a page before following its links")
	cmd.Flags().Float64("rate-limit", 0,
		"Maximum fetches per second per crawl (0 = unlimited)")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum pages per crawl (0 = unlimited)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Maximum redirects followed per fetch")
	cmd.Flags().StringArrayP("exclude", "x", nil,
		"Extra link exclusion pattern (regular expression, repeatable)")

	// Request flags
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().StringArrayP("header", "H", nil,
		`Extra request header as "Name: value" (repeatable)`)
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (host:port)")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")

	// Backend flags
	cmd.Flags().StringP("ledger", "l", config.LedgerMemory,
		"Visited-URL ledger backend: memory, sqlite or redis")
	cmd.Flags().String("redis-url", "",
		"Redis URL for the redis ledger (default: $REDIS_URL)")
	cmd.Flags().String("redis-key", config.DefaultRedisKey,
		"Redis hash holding visit timestamps")
	cmd.Flags().String("kafka-broker", "",
		"Kafka broker for the content extraction hand-off (default: $KAFKA_BROKER)")
	cmd.Flags().String("kafka-topic", config.DefaultKafkaTopic,
		"Kafka topic for extraction jobs (default: $KAFKA_TOPIC)")
	cmd.Flags().String("db-dir", "",
		"Directory of the SQLite database (default: XDG data directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record runs in the history database")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .medcrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("xlsx", "",
		"Also write discovered URLs to this spreadsheet")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args, os.Getenv)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// buildConfig creates a Config from defaults, the environment and the
// command flags, in increasing order of precedence.
func buildConfig(cmd *cobra.Command, args []string, getenv func(string) string) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	var err error

	// Flags backed by environment variables only win when set explicitly.
	if flags.Changed("concurrency") {
		if cfg.ConcurrencyLimit, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("revisit-interval") {
		if cfg.RevisitInterval, err = flags.GetDuration("revisit-interval"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("redis-url") {
		if cfg.RedisURL, err = flags.GetString("redis-url"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("kafka-broker") {
		if cfg.KafkaBroker, err = flags.GetString("kafka-broker"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("kafka-topic") {
		if cfg.KafkaTopic, err = flags.GetString("kafka-topic"); err != nil {
			return nil, err
		}
	}

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Deadline, err = flags.GetDuration("deadline"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("crawl-delay"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.MaxRedirects, err = flags.GetInt("max-redirects"); err != nil {
		return nil, err
	}
	if cfg.ExcludePatterns, err = flags.GetStringArray("exclude"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.LedgerBackend, err = flags.GetString("ledger"); err != nil {
		return nil, err
	}
	if cfg.RedisKey, err = flags.GetString("redis-key"); err != nil {
		return nil, err
	}

	rawHeaders, err := flags.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(rawHeaders); err != nil {
		return nil, err
	}

	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.XLSXFile, err = flags.GetString("xlsx"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Seeds = args

	return cfg, nil
}

// loadSiteConfigs loads the configuration file.
// If the user explicitly specified a path, a missing file is an error;
// otherwise an empty configuration is used.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)

	switch {
	case configPath != "":
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		return cf, nil
	case explicitPath != "":
		return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
	default:
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}
}

// parseHeaders parses "Name: value" header flags.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// runCrawl crawls every seed in cfg and writes a report per run to out.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	if len(cfg.Seeds) == 0 {
		return errors.New("no seeds provided (specify one or more URLs as arguments)")
	}

	for i, seed := range cfg.Seeds {
		u, err := urlfilter.NormalizeSeed(seed)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", seed, err)
		}
		cfg.Seeds[i] = u.String()
	}

	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"ledger", cfg.LedgerBackend,
		"concurrency", cfg.ConcurrencyLimit,
		"revisit_interval", cfg.RevisitInterval,
		"batch_size", cfg.BatchSize,
	)

	var db *database.CrawlDB
	if cfg.SaveToDB || cfg.LedgerBackend == config.LedgerSQLite {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	visited, err := openLedger(ctx, cfg, db)
	if err != nil {
		return err
	}
	if cfg.LedgerBackend != config.LedgerSQLite {
		defer visited.Close()
	}

	h := newHandoff(cfg, logger)
	if closer, ok := h.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("failed to close extraction hand-off", "error", err)
			}
		}()
	}

	spiders := make(map[string]*crawler.Spider)
	for _, seed := range cfg.Seeds {
		host := urlfilter.Authority(seed)
		if _, ok := spiders[host]; ok {
			continue
		}
		spider, err := newSpider(cfg.ForSite(host), visited, h, logger)
		if err != nil {
			return err
		}
		spiders[host] = spider
	}

	var history pipeline.RunStore
	if cfg.SaveToDB {
		history = db
	}

	bp := pipeline.NewBatchProcessor(
		func(seed string) *pipeline.Pipeline {
			p := pipeline.New(
				pipeline.WithLogger(logger),
				pipeline.WithContinueOnError(true),
			)
			p.AddStep(pipeline.NewCrawlStep(spiders[urlfilter.Authority(seed)], pipeline.WithCrawlLogger(logger)))
			if history != nil {
				p.AddStep(pipeline.NewHistoryStep(history))
			}
			return p
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	output, closeOutput, err := openReportOutput(cfg.ReportFile, out)
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := newReportWriter(cfg, output)

	var (
		mu     sync.Mutex
		failed int
	)
	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(run *model.CrawlRun, index int) {
		mu.Lock()
		defer mu.Unlock()

		logger.Info("crawl finished",
			"index", index+1,
			"total", len(cfg.Seeds),
			"seed", run.SeedURL,
			"discovered", run.DiscoveredCount(),
		)
		if run.Failed() && !run.TimedOut {
			failed++
		}

		if _, err := writer.Write(run); err != nil {
			logger.Error("report failed", "seed", run.SeedURL, "error", err)
		}
		if cfg.XLSXFile != "" {
			path := xlsxPathFor(cfg.XLSXFile, run, index, len(cfg.Seeds) > 1)
			if err := writeXLSX(path, run); err != nil {
				logger.Error("spreadsheet export failed", "seed", run.SeedURL, "path", path, "error", err)
			}
		}
	})

	if batchErr != nil {
		if !errors.Is(batchErr, context.DeadlineExceeded) {
			return batchErr
		}
		logger.Warn("crawl deadline reached, reported partial results", "deadline", cfg.Deadline)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d crawls failed", failed, len(cfg.Seeds))
	}
	return nil
}

// openLedger returns the visited-URL ledger selected by cfg.
// The sqlite ledger is the history database itself.
func openLedger(ctx context.Context, cfg *config.Config, db *database.CrawlDB) (ledger.Ledger, error) {
	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		if db == nil {
			return nil, errors.New("sqlite ledger requires the database")
		}
		return db, nil
	case config.LedgerRedis:
		r, err := ledger.NewRedis(ctx, cfg.RedisURL, ledger.WithRedisKey(cfg.RedisKey))
		if err != nil {
			return nil, fmt.Errorf("failed to open redis ledger: %w", err)
		}
		return r, nil
	default:
		return ledger.NewMemory(), nil
	}
}

// newHandoff returns the Kafka hand-off when a broker is configured.
func newHandoff(cfg *config.Config, logger *slog.Logger) handoff.Handoff {
	if cfg.KafkaBroker == "" {
		return handoff.Nop{}
	}
	return handoff.NewKafkaHandoff(cfg.KafkaBroker, cfg.KafkaTopic, handoff.WithKafkaLogger(logger))
}

// newSpider builds the fetcher and spider for one site's configuration.
func newSpider(cfg *config.Config, visited ledger.Ledger, h handoff.Handoff, logger *slog.Logger) (*crawler.Spider, error) {
	client, err := fetcher.NewHTTPClient(fetcher.ClientOptions{
		ProxyAddress: cfg.ProxyAddress,
		MaxRedirects: cfg.MaxRedirects,
		Cookie:       cfg.Cookie,
		Headers:      cfg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	f := fetcher.NewHTTPFetcher(client,
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithLogger(logger),
	)

	return crawler.NewSpider(f, visited,
		crawler.WithConcurrencyLimit(cfg.ConcurrencyLimit),
		crawler.WithRevisitInterval(cfg.RevisitInterval),
		crawler.WithPacingDelay(cfg.CrawlDelay),
		crawler.WithExcludePatterns(cfg.AllExcludePatterns()),
		crawler.WithRateLimit(cfg.RateLimit),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithHandoff(h),
		crawler.WithLogger(logger),
	), nil
}

// newReportWriter returns the writer for the requested report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		var opts []report.JSONWriterOption
		if cfg.Verbose {
			opts = append(opts, report.WithRunMetadata())
		}
		return report.NewJSONWriter(output, opts...)
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// openReportOutput returns the report destination: path when set, out otherwise.
func openReportOutput(path string, out io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return out, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may list URLs of private intranet pages, so keep them owner-only.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// xlsxPathFor returns the spreadsheet path for run, the index-th seed of
// the batch. With several seeds the 1-based seed position and the run's
// domain are added before the extension, so runs never overwrite each
// other even when two seeds share a host.
func xlsxPathFor(base string, run *model.CrawlRun, index int, multi bool) string {
	if !multi {
		return base
	}
	domain := run.RootDomain()
	if domain == "" {
		domain = urlfilter.Authority(run.SeedURL)
	}
	domain = strings.ReplaceAll(domain, ":", "_")
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%d-%s%s", strings.TrimSuffix(base, ext), index+1, domain, ext)
}

// writeXLSX writes run as a spreadsheet to path.
func writeXLSX(path string, run *model.CrawlRun) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create spreadsheet: %w", err)
	}
	if _, err := report.NewXLSXWriter(f).Write(run); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
