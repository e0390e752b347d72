package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbitrage/internal/market"
	"carbitrage/internal/scraper"
)

func newMock(t *testing.T) (*PostgresWriter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

var (
	study = market.Study{
		Name:      "yaris",
		TargetURL: "https://www.marktplaats.nl/l/auto-s/q/yaris/",
		SourceURL: "https://www.bilbasen.dk/brugt/bil/toyota/yaris",
	}
	result = market.StudyExecutionResult{
		RunID:  "6f1c7a52-3a8e-4c55-9a43-7e9b0f1d2c11",
		Status: market.StatusOpportunities,
	}
)

func TestMigrate(t *testing.T) {
	pw, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS study_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, pw.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStudyRun(t *testing.T) {
	pw, mock := newMock(t)
	target := []scraper.Listing{{
		Title: "Toyota Yaris", Price: 16500, Currency: scraper.CurrencyEUR, URL: "https://www.marktplaats.nl/v/1",
		PriceType: scraper.PriceOneOff, Year: scraper.IntPtr(2021),
	}}
	source := []scraper.Listing{
		{Title: "Toyota Yaris", Price: 80000, Currency: scraper.CurrencyDKK, URL: "https://www.bilbasen.dk/brugt/bil/toyota/yaris/2", PriceType: scraper.PriceOneOff},
		{Title: "dup", Price: 80000, Currency: scraper.CurrencyDKK, URL: "https://www.bilbasen.dk/brugt/bil/toyota/yaris/2", PriceType: scraper.PriceOneOff},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO study_runs").
		WithArgs(result.RunID, "yaris", study.TargetURL, study.SourceURL, "OPPORTUNITIES",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO listing_observations").
		WithArgs(
			"https://www.marktplaats.nl/v/1", "marktplaats", "Toyota Yaris", 16500.0, "EUR", 16500.0, int64(2021), nil, "one-off", result.RunID,
			"https://www.bilbasen.dk/brugt/bil/toyota/yaris/2", "bilbasen", "Toyota Yaris", 80000.0, "DKK", 10400.0, nil, nil, "one-off", result.RunID,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, pw.SaveStudyRun(context.Background(), study, result, target, source))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStudyRunRollsBackOnFailure(t *testing.T) {
	pw, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO study_runs").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := pw.SaveStudyRun(context.Background(), study, result, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	pw, mock := newMock(t)
	mock.ExpectQuery("SELECT result FROM study_runs").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).
			AddRow([]byte(`{"run_id":"a","status":"NULL"}`)).
			AddRow([]byte(`{"run_id":"b","status":"TARGET_BLOCKED"}`)))

	runs, err := pw.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, market.StatusTargetBlocked, runs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
