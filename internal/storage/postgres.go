// Package storage persists study runs and the listings they observed.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"carbitrage/internal/market"
	"carbitrage/internal/scraper"
)

const (
	pingAttempts = 5
	pingDelay    = 2 * time.Second
	batchSize    = 50
	listingCols  = 10
)

// PostgresWriter stores study runs. Listing observations are keyed by URL
// and keep their first-seen time.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter connects, waits for the server and migrates the schema.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	for i := 0; i < pingAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(pingDelay):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := NewWithDB(db)
	if err := pw.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

// NewWithDB wraps an open handle without migrating.
func NewWithDB(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// Migrate creates the tables when missing.
func (pw *PostgresWriter) Migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS study_runs (
			run_id                UUID PRIMARY KEY,
			name                  TEXT          NOT NULL DEFAULT '',
			target_url            TEXT          NOT NULL,
			source_url            TEXT          NOT NULL,
			status                VARCHAR(20)   NOT NULL,
			target_median_price   NUMERIC(12,2) NOT NULL DEFAULT 0,
			best_source_price     NUMERIC(12,2) NOT NULL DEFAULT 0,
			price_difference      NUMERIC(12,2) NOT NULL DEFAULT 0,
			filtered_target_count INT           NOT NULL DEFAULT 0,
			filtered_source_count INT           NOT NULL DEFAULT 0,
			raw_target_count      INT           NOT NULL DEFAULT 0,
			raw_source_count      INT           NOT NULL DEFAULT 0,
			target_error          TEXT          NOT NULL DEFAULT '',
			source_error          TEXT          NOT NULL DEFAULT '',
			result                JSONB         NOT NULL,
			created_at            TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS listing_observations (
			url          TEXT PRIMARY KEY,
			marketplace  VARCHAR(20)   NOT NULL,
			title        TEXT          NOT NULL,
			price        NUMERIC(12,2) NOT NULL,
			currency     VARCHAR(8)    NOT NULL,
			price_eur    NUMERIC(12,2) NOT NULL,
			year         INT,
			mileage      INT,
			price_type   VARCHAR(16)   NOT NULL,
			last_run_id  UUID          NOT NULL,
			first_seen   TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			last_seen    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_study_runs_status       ON study_runs(status);
		CREATE INDEX IF NOT EXISTS idx_listing_obs_marketplace ON listing_observations(marketplace);
	`)
	return err
}

// SaveStudyRun writes the run and upserts every filtered listing in one
// transaction.
func (pw *PostgresWriter) SaveStudyRun(ctx context.Context, study market.Study, res market.StudyExecutionResult, target, source []scraper.Listing) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("postgres: encode result: %w", err)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO study_runs (run_id, name, target_url, source_url, status,
			target_median_price, best_source_price, price_difference,
			filtered_target_count, filtered_source_count, raw_target_count, raw_source_count,
			target_error, source_error, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		res.RunID, study.Name, study.TargetURL, study.SourceURL, string(res.Status),
		res.TargetMedianPrice, res.BestSourcePrice, res.PriceDifference,
		res.FilteredTargetCount, res.FilteredSourceCount, res.RawTargetCount, res.RawSourceCount,
		res.TargetError, res.SourceError, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}

	all := append(append([]scraper.Listing{}, target...), source...)
	for i := 0; i < len(all); i += batchSize {
		end := i + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := upsertBatch(ctx, tx, res.RunID, all[i:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func upsertBatch(ctx context.Context, tx *sql.Tx, runID string, batch []scraper.Listing) error {
	// a URL twice in one statement makes ON CONFLICT fail
	seen := map[string]bool{}
	values := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*listingCols)
	for _, l := range batch {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		base := len(values) * listingCols
		ph := make([]string, listingCols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ",")+")")
		args = append(args,
			l.URL, string(scraper.SelectParserByHostname(l.URL)), l.Title, l.Price, string(l.Currency),
			scraper.PriceEUR(l), nullInt(l.Year), nullInt(l.Mileage), string(l.PriceType), runID)
	}

	query := fmt.Sprintf(`
		INSERT INTO listing_observations (url, marketplace, title, price, currency, price_eur, year, mileage, price_type, last_run_id)
		VALUES %s
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			price_eur = EXCLUDED.price_eur,
			year = EXCLUDED.year,
			mileage = EXCLUDED.mileage,
			price_type = EXCLUDED.price_type,
			last_run_id = EXCLUDED.last_run_id,
			last_seen = NOW()
	`, strings.Join(values, ","))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: upsert listings: %w", err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// RecentRuns returns the latest runs, newest first.
func (pw *PostgresWriter) RecentRuns(ctx context.Context, limit int) ([]market.StudyExecutionResult, error) {
	rows, err := pw.db.QueryContext(ctx, `SELECT result FROM study_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent runs: %w", err)
	}
	defer rows.Close()

	var out []market.StudyExecutionResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		var r market.StudyExecutionResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("postgres: decode run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
