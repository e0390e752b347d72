package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"carbitrage/internal/config"
	"carbitrage/internal/formatter"
	"carbitrage/internal/storage"
)

var runsLimit int

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the latest stored study runs",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}
	cmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "How many runs to list")
	return cmd
}

func runRuns(cmd *cobra.Command, args []string) error {
	if err := validateFlags(resolvedFormat("text")); err != nil {
		return err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pw, err := storage.NewPostgresWriter(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer pw.Close()

	runs, err := pw.RecentRuns(ctx, runsLimit)
	if err != nil {
		return err
	}
	return emit(&formatter.RunsContent{Runs: runs}, "text")
}
