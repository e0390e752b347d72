package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbitrage/internal/metrics"
	"carbitrage/internal/orchestrator"
	"carbitrage/internal/scraper"
)

// Status is the study verdict.
type Status string

const (
	StatusNull          Status = "NULL"
	StatusOpportunities Status = "OPPORTUNITIES"
	StatusTargetBlocked Status = "TARGET_BLOCKED"
)

// Study compares one target market search against one source market search.
type Study struct {
	Name           string   `json:"name,omitempty"`
	TargetURL      string   `json:"target_url"`
	SourceURL      string   `json:"source_url"`
	Criteria       Criteria `json:"criteria"`
	Threshold      float64  `json:"threshold"`
	MaxInteresting int      `json:"max_interesting,omitempty"`
}

// StudyExecutionResult is a plain record meant for persistence and display.
type StudyExecutionResult struct {
	RunID               string            `json:"run_id"`
	Status              Status            `json:"status"`
	TargetStats         Stats             `json:"target_stats"`
	TargetMedianPrice   float64           `json:"target_median_price"`
	BestSourcePrice     float64           `json:"best_source_price"`
	PriceDifference     float64           `json:"price_difference"`
	InterestingListings []scraper.Listing `json:"interesting_listings"`
	FilteredTargetCount int               `json:"filtered_target_count"`
	FilteredSourceCount int               `json:"filtered_source_count"`
	RawTargetCount      int               `json:"raw_target_count"`
	RawSourceCount      int               `json:"raw_source_count"`
	TargetError         string            `json:"target_error,omitempty"`
	SourceError         string            `json:"source_error,omitempty"`
}

// Scraper runs one scrape request. *orchestrator.Orchestrator satisfies it.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string, mode orchestrator.Mode) scraper.SearchResult
}

// Sink persists finished runs.
type Sink interface {
	SaveStudyRun(ctx context.Context, study Study, res StudyExecutionResult, target, source []scraper.Listing) error
}

// Executor runs studies.
type Executor struct {
	scraper Scraper
	log     *zap.Logger
	metrics *metrics.Recorder
	sink    Sink
	newID   func() string
}

// ExecutorOption customises an Executor.
type ExecutorOption func(*Executor)

func WithLogger(l *zap.Logger) ExecutorOption { return func(e *Executor) { e.log = l } }

func WithMetrics(m *metrics.Recorder) ExecutorOption { return func(e *Executor) { e.metrics = m } }

// WithSink stores every finished run. Sink failures are logged only.
func WithSink(s Sink) ExecutorOption { return func(e *Executor) { e.sink = s } }

// WithRunID replaces uuid generation.
func WithRunID(fn func() string) ExecutorOption { return func(e *Executor) { e.newID = fn } }

// NewExecutor returns an Executor scraping through s.
func NewExecutor(s Scraper, opts ...ExecutorOption) *Executor {
	e := &Executor{
		scraper: s,
		log:     zap.NewNop(),
		newID:   func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute scrapes the target market, then the source market, and compares
// them. A blocked target short-circuits before the source is scraped; a
// failed source keeps the target statistics.
func (e *Executor) Execute(ctx context.Context, study Study) StudyExecutionResult {
	res := StudyExecutionResult{RunID: e.newID(), Status: StatusNull, InterestingListings: []scraper.Listing{}}
	log := e.log.With(zap.String("run_id", res.RunID), zap.String("study", study.Name))

	var target, source []scraper.Listing
	defer func() {
		e.metrics.Study(string(res.Status))
		log.Info("study finished", zap.String("status", string(res.Status)),
			zap.Int("filtered_target", res.FilteredTargetCount), zap.Int("filtered_source", res.FilteredSourceCount),
			zap.Float64("price_difference", res.PriceDifference))
		if e.sink != nil {
			if err := e.sink.SaveStudyRun(ctx, study, res, target, source); err != nil {
				log.Error("failed to persist study run", zap.Error(err))
			}
		}
	}()

	targetRes := e.scraper.Scrape(ctx, study.TargetURL, orchestrator.ModeFull)
	res.RawTargetCount = len(targetRes.Listings)
	switch targetRes.Outcome() {
	case scraper.OutcomeBlocked:
		res.Status = StatusTargetBlocked
		res.TargetError = "blocked:" + targetRes.BlockReason
		return res
	case scraper.OutcomeFailed:
		res.TargetError = fmt.Sprintf("%s:%s", targetRes.Error, targetRes.ErrorReason)
		return res
	}

	target = FilterListingsByStudy(targetRes.Listings, study.Criteria)
	res.FilteredTargetCount = len(target)
	res.TargetStats = ComputeTargetMarketStats(target)
	res.TargetMedianPrice = res.TargetStats.Median
	log.Debug("target market computed", zap.Int("raw", res.RawTargetCount), zap.Int("filtered", len(target)),
		zap.Float64("median", res.TargetMedianPrice))

	sourceRes := e.scraper.Scrape(ctx, study.SourceURL, orchestrator.ModeFull)
	res.RawSourceCount = len(sourceRes.Listings)
	switch sourceRes.Outcome() {
	case scraper.OutcomeBlocked:
		res.SourceError = "blocked:" + sourceRes.BlockReason
		return res
	case scraper.OutcomeFailed:
		res.SourceError = fmt.Sprintf("%s:%s", sourceRes.Error, sourceRes.ErrorReason)
		return res
	}

	source = FilterListingsByStudy(sourceRes.Listings, study.Criteria)
	res.FilteredSourceCount = len(source)

	opp := DetectOpportunity(target, source, study.Threshold, study.MaxInteresting)
	res.BestSourcePrice = opp.BestSourcePrice
	res.PriceDifference = opp.PriceDifference
	res.InterestingListings = opp.InterestingListings
	if opp.HasOpportunity {
		res.Status = StatusOpportunities
	}
	return res
}
