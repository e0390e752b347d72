package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbitrage/internal/formatter"
	"carbitrage/internal/market"
	"carbitrage/internal/storage"
)

var (
	studyName           string
	studyTarget         string
	studySource         string
	studyBrand          string
	studyModel          string
	studyYear           int
	studyYearMax        int
	studyMaxMileage     int
	studyThreshold      float64
	studyMaxInteresting int
)

func newStudyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study",
		Short: "Compare a target market against a source market",
		Long: `study scrapes the target market search, computes statistics over the
cheapest matching listings and reports the source market listings priced at
least --threshold euros below the target median.`,
		Args: cobra.NoArgs,
		RunE: runStudy,
	}
	f := cmd.Flags()
	f.StringVar(&studyName, "name", "", "Study name stored with the run")
	f.StringVar(&studyTarget, "target", "", "Target market search URL (where the car would be sold)")
	f.StringVar(&studySource, "source", "", "Source market search URL (where the car would be bought)")
	f.StringVar(&studyBrand, "brand", "", "Brand every listing title must contain")
	f.StringVar(&studyModel, "model", "", "Model every listing title must contain")
	f.IntVar(&studyYear, "year", 0, "Minimum model year (0 disables)")
	f.IntVar(&studyYearMax, "year-max", 0, "Maximum model year (0 disables)")
	f.IntVar(&studyMaxMileage, "max-mileage", 0, "Maximum mileage in km (0 disables)")
	f.Float64Var(&studyThreshold, "threshold", 5000, "Minimum price gap in EUR")
	f.IntVar(&studyMaxInteresting, "max-interesting", market.DefaultMaxInteresting, "How many source listings to report")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func buildStudy() (market.Study, error) {
	if studyThreshold < 0 {
		return market.Study{}, errors.New("threshold must not be negative")
	}
	if studyYearMax > 0 && studyYear > studyYearMax {
		return market.Study{}, fmt.Errorf("year %d is after year-max %d", studyYear, studyYearMax)
	}
	return market.Study{
		Name:      studyName,
		TargetURL: normalizeURL(studyTarget),
		SourceURL: normalizeURL(studySource),
		Criteria: market.Criteria{
			Brand:      studyBrand,
			Model:      studyModel,
			Year:       studyYear,
			YearMax:    studyYearMax,
			MaxMileage: studyMaxMileage,
		},
		Threshold:      studyThreshold,
		MaxInteresting: studyMaxInteresting,
	}, nil
}

func runStudy(cmd *cobra.Command, args []string) error {
	study, err := buildStudy()
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

	opts := []market.ExecutorOption{market.WithLogger(a.log), market.WithMetrics(a.metrics)}
	if a.cfg.Postgres.DSN != "" {
		pw, err := storage.NewPostgresWriter(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		a.closers = append(a.closers, pw.Close)
		opts = append(opts, market.WithSink(pw))
	}

	res := market.NewExecutor(a.orchestrator(), opts...).Execute(ctx, study)
	a.log.Info("study finished", zap.String("run_id", res.RunID), zap.String("status", string(res.Status)))
	return emit(&formatter.StudyContent{Study: study, Result: res}, "text")
}
