package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carbitrage/internal/formatter"
	"carbitrage/internal/orchestrator"
	"carbitrage/internal/parity"
	"carbitrage/internal/scraper"
)

var (
	scrapeMode     string
	scrapeParallel int
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape URL...",
		Short: "Scrape one or more search result pages",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScrape,
	}
	cmd.Flags().StringVar(&scrapeMode, "mode", "full", "Scrape mode: fast (first page) or full (paginate)")
	cmd.Flags().IntVar(&scrapeParallel, "parallel", 2, "How many URLs to scrape at once")
	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	mode, err := orchestrator.ParseMode(scrapeMode)
	if err != nil {
		return err
	}
	if err := validateFlags(resolvedFormat("text")); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	orch := a.orchestrator()

	results := make([]*formatter.SearchContent, len(args))
	g, gctx := errgroup.WithContext(ctx)
	if scrapeParallel > 0 {
		g.SetLimit(scrapeParallel)
	}
	for i, raw := range args {
		i, target := i, normalizeURL(raw)
		g.Go(func() error {
			res := orch.Scrape(gctx, target, mode)
			results[i] = &formatter.SearchContent{
				URL:         target,
				Marketplace: scraper.SelectParserByHostname(target),
				Result:      res,
				Hash:        parity.HashListingPool(res.Listings),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		a.log.Info("scrape result", zap.String("url", r.URL), zap.String("outcome", string(r.Result.Outcome())),
			zap.Int("listings", len(r.Result.Listings)), zap.String("hash", r.Hash))
	}
	if len(results) == 1 {
		return emit(results[0], "text")
	}
	return emit(&formatter.MultiSearchContent{Searches: results}, "text")
}
