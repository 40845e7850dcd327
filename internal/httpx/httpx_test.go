package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	if err := DecodeJSON(r, &dst); err == nil {
		t.Fatalf("expected unknown field error")
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := DecodeJSON(r, &dst); err == nil || err.Error() != "request body is required" {
		t.Fatalf("expected missing body error, got %v", err)
	}
}

func TestInstrumentPreservesStatus(t *testing.T) {
	h := Instrument("/x", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusTeapot, map[string]string{"ok": "no"})
	})
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
}
