package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbitrage/internal/detail"
	"carbitrage/internal/fetcher"
	"carbitrage/internal/formatter"
	"carbitrage/internal/scraper"
)

func newDetailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail URL",
		Short: "Fetch a single listing page and extract its description and options",
		Args:  cobra.ExactArgs(1),
		RunE:  runDetail,
	}
}

func runDetail(cmd *cobra.Command, args []string) error {
	if err := validateFlags(resolvedFormat("json")); err != nil {
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

	target := normalizeURL(args[0])
	resp, err := a.fetcher.Fetch(ctx, fetcher.Request{
		URL:     target,
		Kind:    scraper.SelectParserByHostname(target),
		Profile: fetcher.ProfileGeoJS,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch listing: %w", err)
	}
	if resp.Banned {
		return fmt.Errorf("listing page blocked: %s", resp.BanReason)
	}

	d, err := detail.NewBuilder().Build(scraper.Listing{URL: target}, resp.HTML)
	if err != nil {
		return fmt.Errorf("failed to build detail: %w", err)
	}
	a.log.Info("detail extracted", zap.String("url", target),
		zap.Int("options", len(d.Options)), zap.Int("description_len", len(d.FullDescription)))
	return emit(&formatter.DetailContent{Detail: d}, "json")
}
