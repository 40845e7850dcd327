package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/ingest"
	"github.com/glendonC/mallards/internal/service"
)

type mapLoader map[string]contracts.Dataset

func (m mapLoader) LoadDataset(_ context.Context, id string, _ time.Time) (contracts.Dataset, error) {
	ds, ok := m[id]
	if !ok {
		return contracts.Dataset{}, fmt.Errorf("load dataset %s: %w", id, pgx.ErrNoRows)
	}
	return ds, nil
}

type memAlerts struct {
	items   []contracts.AlertRecord
	updated map[string]string
	calls   int
}

func (m *memAlerts) ListAlerts(_ context.Context, datasetID, status string, _ int) ([]contracts.AlertRecord, error) {
	var out []contracts.AlertRecord
	for _, a := range m.items {
		if (datasetID == "" || a.DatasetID == datasetID) && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAlerts) UpdateAlertStatus(_ context.Context, id, status string) error {
	m.calls++
	for _, a := range m.items {
		if a.ID == id {
			m.updated[id] = status
			return nil
		}
	}
	return pgx.ErrNoRows
}

const (
	alertOne = "7d8f3c5e-1b2a-4c6d-9e0f-112233445566"
	alertTwo = "0a1b2c3d-4e5f-4a6b-8c7d-8e9fa0b1c2d3"
)

func daily(n int, amount float64) []contracts.TransactionRecord {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]contracts.TransactionRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, contracts.TransactionRecord{Timestamp: start.Add(time.Duration(i) * 24 * time.Hour), Amount: amount, Region: "north"})
	}
	return out
}

func newQueryRouter(alerts *memAlerts) http.Handler {
	loader := mapLoader{
		"loans": {ID: "loans", Version: "3", Schema: contracts.Schema{HasRegion: true}, Records: daily(21, 100)},
	}
	h := &QueryHandlers{
		Reports:  &service.Reporter{Loader: loader, Memo: align.NewMemo(8)},
		Alerts:   alerts,
		Defaults: align.DefaultSettings(),
		Mapping:  ingest.DefaultMapping(),
	}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDatasetAlignment(t *testing.T) {
	router := newQueryRouter(&memAlerts{})

	rec := serve(router, http.MethodGet, "/v1/datasets/loans/alignment?timeRange=month&groupBy=region", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var report contracts.AlignmentReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.DatasetID != "loans" || report.TimeRange != "month" || report.Status != contracts.ReportOK {
		t.Fatalf("unexpected report header %+v", report)
	}
	if len(report.Groups) != 1 || report.Groups[0].Value != "north" {
		t.Fatalf("expected one region group, got %+v", report.Groups)
	}
	if len(report.Events) != 0 {
		t.Fatalf("flat series must not produce events, got %d", len(report.Events))
	}
}

func TestDatasetAlignmentErrors(t *testing.T) {
	router := newQueryRouter(&memAlerts{})
	cases := []struct {
		target string
		want   int
	}{
		{"/v1/datasets/loans/alignment?timeRange=yearly", http.StatusBadRequest},
		{"/v1/datasets/loans/alignment?sensitivity=abc", http.StatusBadRequest},
		{"/v1/datasets/loans/alignment?threshold=140", http.StatusBadRequest},
		{"/v1/datasets/loans/alignment?groupBy=color", http.StatusBadRequest},
		{"/v1/datasets/missing/alignment", http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := serve(router, http.MethodGet, tc.target, nil); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.target, rec.Code, tc.want)
		}
	}
}

func TestInlineAlignment(t *testing.T) {
	router := newQueryRouter(&memAlerts{})
	rows := []map[string]any{
		{"Date": "2024-01-01", "Loan Amount": "$1,000.00"},
		{"Date": "2024-01-02", "Loan Amount": 1000},
		{"Date": "not a date", "Loan Amount": 5},
	}
	body, _ := json.Marshal(map[string]any{
		"datasetId": "upload",
		"rows":      rows,
		"mapping":   map[string]string{"timestamp": "Date", "amount": "Loan Amount"},
		"settings":  map[string]any{"timeRange": "30d"},
	})

	rec := serve(router, http.MethodPost, "/v1/alignment", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Accepted int                       `json:"accepted"`
		Skipped  int                       `json:"skipped"`
		Report   contracts.AlignmentReport `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Accepted != 2 || out.Skipped != 1 {
		t.Fatalf("accepted=%d skipped=%d", out.Accepted, out.Skipped)
	}
	if out.Report.DatasetID != "upload" || out.Report.TimeRange != "30d" {
		t.Fatalf("unexpected report %+v", out.Report)
	}

	bad, _ := json.Marshal(map[string]any{"settings": map[string]any{"detector": "magic"}})
	if rec := serve(router, http.MethodPost, "/v1/alignment", bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid detector: status = %d", rec.Code)
	}
}

func TestAlertRoutes(t *testing.T) {
	alerts := &memAlerts{
		items: []contracts.AlertRecord{
			{ID: alertOne, DatasetID: "loans", Status: "open"},
			{ID: alertTwo, DatasetID: "cards", Status: "open"},
		},
		updated: map[string]string{},
	}
	router := newQueryRouter(alerts)

	rec := serve(router, http.MethodGet, "/v1/alerts?dataset=loans", nil)
	var list struct {
		Items []contracts.AlertRecord `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("list: err=%v items=%+v", err, list.Items)
	}

	if rec := serve(router, http.MethodPatch, "/v1/alerts/"+alertOne+"/ack", nil); rec.Code != http.StatusOK {
		t.Fatalf("ack status = %d", rec.Code)
	}
	if alerts.updated[alertOne] != "acknowledged" {
		t.Fatalf("ack not applied: %+v", alerts.updated)
	}
	if rec := serve(router, http.MethodPatch, "/v1/alerts/00000000-0000-0000-0000-000000000000/resolve", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing alert status = %d", rec.Code)
	}

	calls := alerts.calls
	if rec := serve(router, http.MethodPatch, "/v1/alerts/not-a-uuid/resolve", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("malformed id status = %d", rec.Code)
	}
	if alerts.calls != calls {
		t.Fatalf("malformed ids must not reach the store")
	}
}

func TestSettingsFromQuery(t *testing.T) {
	base := align.DefaultSettings()
	base.GroupBy = []string{"type"}

	s, err := SettingsFromQuery(base, map[string][]string{
		"sensitivity":    {"5"},
		"alertThreshold": {"0.8"},
		"groupBy":        {""},
		"asOf":           {"2024-02-01T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Sensitivity != 5 || s.AlertThreshold != 0.8 || len(s.GroupBy) != 0 {
		t.Fatalf("unexpected settings %+v", s)
	}
	if !s.AsOf.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("asOf = %v", s.AsOf)
	}
	if s.TimeRange != base.TimeRange {
		t.Fatalf("unset keys must keep the base value")
	}

	if _, err := SettingsFromQuery(base, map[string][]string{"asOf": {"yesterday"}}); err == nil {
		t.Fatalf("expected error for malformed asOf")
	}
}

func TestLatestAlignment(t *testing.T) {
	router := newQueryRouter(&memAlerts{})

	if rec := serve(router, http.MethodGet, "/v1/datasets/loans/alignment/latest", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("before any report: status = %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/v1/datasets/loans/alignment?timeRange=month", nil); rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}

	rec := serve(router, http.MethodGet, "/v1/datasets/loans/alignment/latest", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d", rec.Code)
	}
	var out struct {
		Generation uint64                    `json:"generation"`
		Report     contracts.AlignmentReport `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Generation != 1 || out.Report.DatasetID != "loans" || out.Report.TimeRange != "month" {
		t.Fatalf("unexpected latest %+v", out)
	}
}
