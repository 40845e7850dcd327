package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/contracts"
)

type stubLoader struct {
	ds    contracts.Dataset
	err   error
	calls int
}

func (s *stubLoader) LoadDataset(_ context.Context, _ string, _ time.Time) (contracts.Dataset, error) {
	s.calls++
	return s.ds, s.err
}

type stubForecaster struct {
	calls int
}

func (s *stubForecaster) WithFallback(_ context.Context, key string, _ []contracts.ScorePoint, _ int) *contracts.Forecast {
	s.calls++
	return &contracts.Forecast{ModelUsed: key}
}

func sampleDataset() contracts.Dataset {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var records []contracts.TransactionRecord
	for i := 0; i < 20; i++ {
		records = append(records, contracts.TransactionRecord{Timestamp: start.Add(time.Duration(i) * 24 * time.Hour), Amount: 50})
	}
	return contracts.Dataset{ID: "loans", Version: "1", Records: records}
}

func TestDatasetReportAttachesForecast(t *testing.T) {
	loader := &stubLoader{ds: sampleDataset()}
	fc := &stubForecaster{}
	r := &Reporter{Loader: loader, Memo: align.NewMemo(4), Forecaster: fc, ForecastDays: 7}

	report, superseded, err := r.DatasetReport(context.Background(), "loans", align.DefaultSettings(), true)
	if err != nil || superseded {
		t.Fatalf("report: superseded=%v err=%v", superseded, err)
	}
	if report.Forecast == nil || report.Forecast.ModelUsed != "loans|week" {
		t.Fatalf("expected forecast keyed by dataset and range, got %+v", report.Forecast)
	}

	again, _, err := r.DatasetReport(context.Background(), "loans", align.DefaultSettings(), false)
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if again.Forecast != nil {
		t.Fatalf("forecast must only be attached on request")
	}
	if fc.calls != 1 {
		t.Fatalf("expected one forecast call, got %d", fc.calls)
	}
}

func TestDatasetReportValidatesBeforeLoading(t *testing.T) {
	loader := &stubLoader{ds: sampleDataset()}
	r := &Reporter{Loader: loader, Memo: align.NewMemo(4)}
	s := align.DefaultSettings()
	s.TimeRange = "yearly"

	if _, _, err := r.DatasetReport(context.Background(), "loans", s, false); !errors.Is(err, align.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if loader.calls != 0 {
		t.Fatalf("invalid settings must fail before loading data")
	}
}

func TestDatasetReportPropagatesLoadError(t *testing.T) {
	boom := errors.New("db down")
	r := &Reporter{Loader: &stubLoader{err: boom}, Memo: align.NewMemo(4)}
	if _, _, err := r.DatasetReport(context.Background(), "loans", align.DefaultSettings(), false); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestInsufficientDataSkipsForecast(t *testing.T) {
	fc := &stubForecaster{}
	r := &Reporter{Memo: align.NewMemo(4), Forecaster: fc}
	report, _, err := r.Report(context.Background(), contracts.Dataset{ID: "empty"}, align.DefaultSettings(), true)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Status != contracts.ReportInsufficientData || report.Forecast != nil || fc.calls != 0 {
		t.Fatalf("unexpected report %+v calls=%d", report.Status, fc.calls)
	}
}
