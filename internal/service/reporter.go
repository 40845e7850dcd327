// Package service glues storage, the engine memo and the forecast
// collaborator into the report flow used by the binaries.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/metrics"
)

type DatasetLoader interface {
	LoadDataset(ctx context.Context, datasetID string, since time.Time) (contracts.Dataset, error)
}

type Forecaster interface {
	WithFallback(ctx context.Context, key string, history []contracts.ScorePoint, days int) *contracts.Forecast
}

type Reporter struct {
	Loader       DatasetLoader
	Memo         *align.Memo
	Forecaster   Forecaster
	ForecastDays int
	Log          *slog.Logger
}

// DatasetReport loads a stored dataset and returns its report. Superseded
// generations still return their report; callers that publish results use
// the returned flag to drop them.
func (r *Reporter) DatasetReport(ctx context.Context, datasetID string, s align.Settings, withForecast bool) (contracts.AlignmentReport, bool, error) {
	if err := s.Validate(); err != nil {
		metrics.ObserveRecompute("invalid", time.Now())
		return contracts.AlignmentReport{}, false, err
	}
	ds, err := r.Loader.LoadDataset(ctx, datasetID, time.Time{})
	if err != nil {
		return contracts.AlignmentReport{}, false, err
	}
	return r.Report(ctx, ds, s, withForecast)
}

// Report computes (or recalls) the report for an in-memory dataset and
// optionally attaches a forecast. The forecast never changes scores or events.
func (r *Reporter) Report(ctx context.Context, ds contracts.Dataset, s align.Settings, withForecast bool) (contracts.AlignmentReport, bool, error) {
	started := time.Now()
	report, hit, err := r.Memo.Report(ds, s)
	superseded := errors.Is(err, align.ErrSuperseded)
	switch {
	case superseded:
		metrics.ObserveRecompute("superseded", started)
	case err != nil:
		metrics.ObserveRecompute("invalid", started)
		return contracts.AlignmentReport{}, false, err
	default:
		metrics.ObserveRecompute("ok", started)
	}
	metrics.ObserveMemo(hit)
	if !hit {
		metrics.ObserveEvents(report.Events)
	}

	if withForecast && r.Forecaster != nil && report.Status == contracts.ReportOK {
		report.Forecast = r.Forecaster.WithFallback(ctx, ds.ID+"|"+report.TimeRange, report.History, r.ForecastDays)
	}

	if r.Log != nil {
		r.Log.Debug("report ready", "dataset", ds.ID, "cached", hit, "superseded", superseded, "events", len(report.Events), "status", report.Status)
	}
	return report, superseded, nil
}

// Latest returns the newest published report of a dataset, if any.
func (r *Reporter) Latest(datasetID string) (contracts.AlignmentReport, uint64, bool) {
	return r.Memo.Latest(datasetID)
}
