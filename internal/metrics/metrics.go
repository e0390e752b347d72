// Package metrics exposes prometheus counters for scrape activity.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the scrape collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	FetchAttempts *prometheus.CounterVec
	PagesFetched  *prometheus.CounterVec
	Outcomes      *prometheus.CounterVec
	Listings      *prometheus.CounterVec
	Studies       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbitrage_fetch_attempts_total",
				Help: "Fetch attempts by marketplace, profile level and result",
			},
			[]string{"marketplace", "profile", "result"},
		),
		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbitrage_pages_fetched_total",
				Help: "Result pages fetched successfully",
			},
			[]string{"marketplace"},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbitrage_scrape_outcomes_total",
				Help: "Scrape requests by final outcome",
			},
			[]string{"marketplace", "outcome"},
		),
		Listings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbitrage_listings_total",
				Help: "Unique listings returned by scrapes",
			},
			[]string{"marketplace"},
		),
		Studies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbitrage_study_results_total",
				Help: "Study executions by status",
			},
			[]string{"status"},
		),
	}
	r.registry.MustRegister(r.FetchAttempts, r.PagesFetched, r.Outcomes, r.Listings, r.Studies)
	return r
}

// Attempt counts one fetch attempt. result is ok, banned, blocked, empty or error.
func (r *Recorder) Attempt(marketplace string, profile int, result string) {
	if r == nil {
		return
	}
	r.FetchAttempts.WithLabelValues(marketplace, strconv.Itoa(profile), result).Inc()
}

// Page counts a successfully parsed result page.
func (r *Recorder) Page(marketplace string) {
	if r == nil {
		return
	}
	r.PagesFetched.WithLabelValues(marketplace).Inc()
}

// Outcome counts a finished scrape and its listings.
func (r *Recorder) Outcome(marketplace, outcome string, listings int) {
	if r == nil {
		return
	}
	r.Outcomes.WithLabelValues(marketplace, outcome).Inc()
	r.Listings.WithLabelValues(marketplace).Add(float64(listings))
}

// Study counts a finished study execution.
func (r *Recorder) Study(status string) {
	if r == nil {
		return
	}
	r.Studies.WithLabelValues(status).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
