package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/kafka-go"

	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/ingest"
)

type captureStore struct {
	datasetID string
	schema    contracts.Schema
	records   []contracts.TransactionRecord
}

func (c *captureStore) InsertTransactions(_ context.Context, datasetID string, schema contracts.Schema, records []contracts.TransactionRecord) (string, error) {
	c.datasetID, c.schema, c.records = datasetID, schema, records
	return "7", nil
}

type capturePublisher struct {
	msgs []kafka.Message
}

func (c *capturePublisher) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func newIngestRouter(store *captureStore, pub *capturePublisher) http.Handler {
	h := &IngestHandlers{Store: store, Publisher: pub, Mapping: ingest.DefaultMapping()}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestIngestCSV(t *testing.T) {
	store, pub := &captureStore{}, &capturePublisher{}
	router := newIngestRouter(store, pub)

	csvBody := "when,value,Region\n2024-01-01,10.50,north\n2024-01-02,\"1,200\",south\nbad,1,north\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/datasets/loans/transactions?timestampColumn=when&amountColumn=value", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv; charset=utf-8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if store.datasetID != "loans" || len(store.records) != 2 || !store.schema.HasRegion || store.schema.HasType {
		t.Fatalf("unexpected stored batch %+v", store)
	}
	if store.records[1].Amount != 1200 {
		t.Fatalf("amount = %v", store.records[1].Amount)
	}
	if len(pub.msgs) != 1 || string(pub.msgs[0].Key) != "loans" {
		t.Fatalf("expected one notice keyed by dataset, got %d", len(pub.msgs))
	}
	var notice contracts.IngestNotice
	if err := json.Unmarshal(pub.msgs[0].Value, &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Accepted != 2 || notice.Skipped != 1 || notice.Version != "7" {
		t.Fatalf("unexpected notice %+v", notice)
	}
}

func TestIngestRejectsEmptyBatches(t *testing.T) {
	store, pub := &captureStore{}, &capturePublisher{}
	router := newIngestRouter(store, pub)

	req := httptest.NewRequest(http.MethodPost, "/v1/datasets/loans/transactions", strings.NewReader(`{"rows":[{"timestamp":"nope","amount":"x"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.records != nil || len(pub.msgs) != 0 {
		t.Fatalf("nothing should be stored or published")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/datasets/loans/transactions", strings.NewReader(`{"rows":`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
}
