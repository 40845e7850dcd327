package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/httpx"
	"github.com/glendonC/mallards/internal/ingest"
	"github.com/glendonC/mallards/internal/metrics"
	"github.com/glendonC/mallards/internal/mq"
)

const maxUploadBytes = 64 << 20

type TransactionStore interface {
	InsertTransactions(ctx context.Context, datasetID string, schema contracts.Schema, records []contracts.TransactionRecord) (string, error)
}

type IngestHandlers struct {
	Store     TransactionStore
	Publisher mq.Publisher
	Mapping   ingest.Mapping
	Log       *slog.Logger
}

func (h *IngestHandlers) Routes(r chi.Router) {
	r.Post("/v1/datasets/{dataset}/transactions", httpx.Instrument("ingest_transactions", h.ingest))
}

type rowsRequest struct {
	Rows    []map[string]any `json:"rows"`
	Mapping *ingest.Mapping  `json:"mapping"`
}

// ingest accepts text/csv uploads or a JSON {"rows": [...]} body, stores
// the parsed records and announces the new dataset version.
func (h *IngestHandlers) ingest(w http.ResponseWriter, r *http.Request) {
	datasetID := strings.TrimSpace(chi.URLParam(r, "dataset"))
	if datasetID == "" {
		httpx.WriteError(w, http.StatusBadRequest, errors.New("dataset is required"))
		return
	}

	parsed, err := h.parse(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}
	metrics.ObserveIngest(parsed.Accepted, parsed.Skipped)
	if parsed.Accepted == 0 {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "no valid records",
			"skipped": parsed.Skipped,
		})
		return
	}

	version, err := h.Store.InsertTransactions(r.Context(), datasetID, parsed.Schema, parsed.Records)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	notice := contracts.IngestNotice{
		ID:        uuid.NewString(),
		DatasetID: datasetID,
		Accepted:  parsed.Accepted,
		Skipped:   parsed.Skipped,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
	if err := mq.PublishJSON(r.Context(), h.Publisher, datasetID, notice); err != nil {
		// records are stored; the next ingest or a query still sees them
		if h.Log != nil {
			h.Log.Warn("publish ingest notice failed", "dataset", datasetID, "err", err)
		}
	}
	httpx.WriteJSON(w, http.StatusAccepted, notice)
}

func (h *IngestHandlers) parse(r *http.Request) (ingest.Result, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		defer r.Body.Close()
		return ingest.ParseCSV(io.LimitReader(r.Body, maxUploadBytes), mappingFromQuery(h.Mapping, r))
	}

	var req rowsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return ingest.Result{}, err
	}
	mapping := mappingFromQuery(h.Mapping, r)
	if req.Mapping != nil {
		mapping = mapping.Overlay(*req.Mapping)
	}
	return ingest.ParseRows(req.Rows, mapping), nil
}

func mappingFromQuery(base ingest.Mapping, r *http.Request) ingest.Mapping {
	q := r.URL.Query()
	return base.Overlay(ingest.Mapping{
		Timestamp:      q.Get("timestampColumn"),
		Amount:         q.Get("amountColumn"),
		Type:           q.Get("typeColumn"),
		Region:         q.Get("regionColumn"),
		ApprovalStatus: q.Get("approvalColumn"),
	})
}
