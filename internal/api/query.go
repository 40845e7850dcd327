// Package api holds the HTTP handlers of the query and ingest services.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/httpx"
	"github.com/glendonC/mallards/internal/ingest"
)

type ReportSource interface {
	DatasetReport(ctx context.Context, datasetID string, s align.Settings, withForecast bool) (contracts.AlignmentReport, bool, error)
	Report(ctx context.Context, ds contracts.Dataset, s align.Settings, withForecast bool) (contracts.AlignmentReport, bool, error)
	Latest(datasetID string) (contracts.AlignmentReport, uint64, bool)
}

type AlertStore interface {
	ListAlerts(ctx context.Context, datasetID, status string, limit int) ([]contracts.AlertRecord, error)
	UpdateAlertStatus(ctx context.Context, id, status string) error
}

type QueryHandlers struct {
	Reports  ReportSource
	Alerts   AlertStore
	Defaults align.Settings
	Mapping  ingest.Mapping
	Log      *slog.Logger
}

func (h *QueryHandlers) Routes(r chi.Router) {
	r.Get("/v1/datasets/{dataset}/alignment", httpx.Instrument("dataset_alignment", h.datasetAlignment))
	r.Get("/v1/datasets/{dataset}/alignment/latest", httpx.Instrument("dataset_alignment_latest", h.latestAlignment))
	r.Post("/v1/alignment", httpx.Instrument("inline_alignment", h.inlineAlignment))
	r.Get("/v1/alerts", httpx.Instrument("alerts_list", h.listAlerts))
	r.Patch("/v1/alerts/{id}/ack", httpx.Instrument("alerts_ack", h.setAlertStatus("acknowledged")))
	r.Patch("/v1/alerts/{id}/resolve", httpx.Instrument("alerts_resolve", h.setAlertStatus("resolved")))
}

func (h *QueryHandlers) datasetAlignment(w http.ResponseWriter, r *http.Request) {
	datasetID := strings.TrimSpace(chi.URLParam(r, "dataset"))
	s, err := SettingsFromQuery(h.Defaults, r.URL.Query())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}

	report, _, err := h.Reports.DatasetReport(r.Context(), datasetID, s, parseBool(r.URL.Query().Get("forecast")))
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// latestAlignment serves the last report published for the dataset without
// recomputing.
func (h *QueryHandlers) latestAlignment(w http.ResponseWriter, r *http.Request) {
	datasetID := strings.TrimSpace(chi.URLParam(r, "dataset"))
	report, gen, ok := h.Reports.Latest(datasetID)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, errors.New("no report published for dataset"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"generation": gen, "report": report})
}

type inlineRequest struct {
	DatasetID string           `json:"datasetId"`
	Rows      []map[string]any `json:"rows"`
	Mapping   *ingest.Mapping  `json:"mapping"`
	Settings  align.Settings   `json:"settings"`
	Forecast  bool             `json:"forecast"`
}

// inlineAlignment scores rows posted in the request body without storing them.
func (h *QueryHandlers) inlineAlignment(w http.ResponseWriter, r *http.Request) {
	req := inlineRequest{DatasetID: "inline", Settings: h.Defaults}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Settings.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}
	mapping := h.Mapping
	if req.Mapping != nil {
		mapping = mapping.Overlay(*req.Mapping)
	}

	parsed := ingest.ParseRows(req.Rows, mapping)
	ds := contracts.Dataset{ID: req.DatasetID, Schema: parsed.Schema, Records: parsed.Records}
	report, _, err := h.Reports.Report(r.Context(), ds, req.Settings, req.Forecast)
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"accepted": parsed.Accepted,
		"skipped":  parsed.Skipped,
		"report":   report,
	})
}

func (h *QueryHandlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	alerts, err := h.Alerts.ListAlerts(r.Context(), q.Get("dataset"), q.Get("status"), parseLimit(q.Get("limit"), 100))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": alerts})
}

func (h *QueryHandlers) setAlertStatus(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			httpx.WriteError(w, http.StatusNotFound, errors.New("alert not found"))
			return
		}
		if err := h.Alerts.UpdateAlertStatus(r.Context(), id, status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				httpx.WriteError(w, http.StatusNotFound, errors.New("alert not found"))
				return
			}
			httpx.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
	}
}

func (h *QueryHandlers) writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, align.ErrInvalidSettings):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, pgx.ErrNoRows):
		httpx.WriteError(w, http.StatusNotFound, errors.New("dataset not found"))
	default:
		if h.Log != nil {
			h.Log.Error("report failed", "err", err)
		}
		httpx.WriteError(w, http.StatusInternalServerError, err)
	}
}
