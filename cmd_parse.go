package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"carbitrage/internal/blocked"
	"carbitrage/internal/config"
	"carbitrage/internal/formatter"
	"carbitrage/internal/logger"
	"carbitrage/internal/parity"
	"carbitrage/internal/scraper"
)

var parseURL string

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Run the marketplace parser on a saved HTML page",
		Long: `parse selects the parser from --url exactly as a live scrape would and
prints the listings together with the listing pool hash, so two
environments can be compared on the same page.`,
		Args: cobra.ExactArgs(1),
		RunE: runParse,
	}
	cmd.Flags().StringVar(&parseURL, "url", "", "URL the page was fetched from (selects the parser)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	// network settings are irrelevant here; only logging is read
	log := logger.New(logLevel, logFormat)
	if cfg, err := config.Load(configFile); err == nil {
		log = newLogger(cfg)
	}
	defer log.Sync()

	target := normalizeURL(parseURL)
	kind := scraper.SelectParserByHostname(target)
	res := scraper.Parse(kind, string(raw), target)

	result := scraper.SearchResult{Listings: res.Listings, PagesFetched: 1}
	if det := blocked.Detect(string(raw), len(res.Listings) > 0); det.IsBlocked {
		result = scraper.Blocked(det.Describe())
	} else if len(res.Listings) == 0 {
		result = scraper.Failed(fmt.Sprintf("zero_listings:%s", kind))
	}
	if result.Listings == nil {
		result.Listings = []scraper.Listing{}
	}

	log.Sugar().Infow("parsed page", "marketplace", kind, "strategy", res.Strategy,
		"listings", len(res.Listings), "skipped", res.Skipped, "json_errors", res.JSONErrors, "off_host", res.OffHost)

	return emit(&formatter.SearchContent{
		URL:         target,
		Marketplace: kind,
		Result:      result,
		Hash:        parity.HashListingPool(res.Listings),
		Strategy:    res.Strategy,
	}, "text")
}
