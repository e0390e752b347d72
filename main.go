package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbitrage/internal/config"
	"carbitrage/internal/fetcher"
	"carbitrage/internal/formatter"
	"carbitrage/internal/logger"
	"carbitrage/internal/metrics"
	"carbitrage/internal/orchestrator"
	"carbitrage/internal/output"
	_ "carbitrage/internal/sites/bilbasen"
	_ "carbitrage/internal/sites/gaspedaal"
	_ "carbitrage/internal/sites/generic"
	_ "carbitrage/internal/sites/leboncoin"
	_ "carbitrage/internal/sites/marktplaats"
)

var version = "dev"

var (
	configFile   string
	logLevel     string
	logFormat    string
	outputFormat string
	outputFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "carbitrage",
		Short:   "Car listing scraper and cross-market price comparison",
		Version: version,
		Long: `carbitrage scrapes car search result pages from Marktplaats, Leboncoin,
Bilbasen, Gaspedaal and generic marketplaces, normalizes the listings and
compares a target market median against the cheapest source market offers.`,
		Example: `  # Scrape every result page of a Marktplaats search
  carbitrage scrape "https://www.marktplaats.nl/l/auto-s/toyota/q/yaris+cross/"

  # First page only, as CSV
  carbitrage scrape --mode fast -o yaris.csv "https://www.leboncoin.fr/recherche?category=2&text=yaris"

  # Run a parser on a saved page and print the pool hash
  carbitrage parse page.html --url "https://www.bilbasen.dk/brugt/bil/toyota/yaris"

  # Compare Denmark against the Netherlands
  carbitrage study --target "https://www.bilbasen.dk/brugt/bil/toyota/yaris-cross" \
    --source "https://www.marktplaats.nl/l/auto-s/toyota/q/yaris+cross/" \
    --brand Toyota --model "Yaris Cross" --year 2022 --threshold 4000`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "", "Output format (json, csv, markdown, text); inferred from -o when empty")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file path")

	rootCmd.AddCommand(newScrapeCmd(), newParseCmd(), newStudyCmd(), newDetailCmd(), newRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every network command needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Recorder
	fetcher fetcher.Fetcher
	closers []func() error
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.cfg.ScraperConfig(), a.fetcher,
		orchestrator.WithLogger(a.log), orchestrator.WithMetrics(a.metrics))
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("shutdown step failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// newLogger applies the global flag overrides on top of cfg.
func newLogger(cfg *config.Config) *zap.Logger {
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	return logger.New(level, format)
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: newLogger(cfg), metrics: metrics.New()}

	switch {
	case cfg.Scraper.Endpoint != "":
		a.fetcher = fetcher.NewProviderClient(cfg.Scraper.Endpoint, cfg.Scraper.APIKey, cfg.Scraper.RequestTimeout,
			fetcher.WithLogger(a.log))
	case cfg.Browser.Enabled:
		bf := fetcher.NewBrowserFetcher(cfg.BrowserConfig(), cfg.Scraper.RequestTimeout, a.log)
		a.fetcher = bf
		a.closers = append(a.closers, bf.Close)
	default:
		return nil, errors.New("no fetch backend configured")
	}

	if cfg.Cache.Address != "" {
		client := fetcher.NewRedisClient(cfg.RedisConfig())
		if err := client.Ping(ctx).Err(); err != nil {
			a.log.Warn("html cache unavailable, continuing without it", zap.String("address", cfg.Cache.Address), zap.Error(err))
			_ = client.Close()
		} else {
			a.fetcher = fetcher.NewCachedFetcher(a.fetcher, client, cfg.Cache.TTL, a.log)
			a.closers = append(a.closers, client.Close)
		}
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return a, nil
}

func validateFlags(format string) error {
	if !formatter.Valid(format) {
		return fmt.Errorf("invalid output format: %s", format)
	}
	return nil
}

func resolvedFormat(defaultFormat string) string {
	return output.ResolveFormat(outputFormat, outputFile, defaultFormat)
}

// emit renders content in the resolved format and writes it out.
func emit(content formatter.Content, defaultFormat string) error {
	format := resolvedFormat(defaultFormat)
	if err := validateFlags(format); err != nil {
		return err
	}
	rendered, err := formatter.Format(content, format)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return output.New(outputFile).Write(rendered)
}

// normalizeURL adds https:// when the scheme is missing.
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + rawURL
	}
	return rawURL
}
