package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glendonC/mallards/internal/contracts"
)

func TestParseCSVMapsColumnsAndSkipsBadRows(t *testing.T) {
	doc := strings.Join([]string{
		"Created At,Loan Amount,State,Decision",
		"2024-03-01T10:00:00Z,\"$1,250.50\",CA,Approved",
		"not-a-date,100,NY,approved",
		"2024-03-02,abc,NY,denied",
		"2024-03-02 08:30:00,(40.10),NY,declined",
	}, "\n")
	m := Mapping{Timestamp: "created_at", Amount: "loanAmount", Region: "state", ApprovalStatus: "decision"}

	res, err := ParseCSV(strings.NewReader(doc), m)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Accepted != 2 || res.Skipped != 2 {
		t.Fatalf("accepted=%d skipped=%d", res.Accepted, res.Skipped)
	}
	if !res.Schema.HasRegion || !res.Schema.HasApproval || res.Schema.HasType {
		t.Fatalf("unexpected schema %+v", res.Schema)
	}
	first, second := res.Records[0], res.Records[1]
	if first.Amount != 1250.5 || first.Region != "CA" || first.ApprovalStatus != contracts.ApprovalApproved {
		t.Fatalf("unexpected first record %+v", first)
	}
	if second.Amount != -40.1 || second.ApprovalStatus != contracts.ApprovalRejected {
		t.Fatalf("unexpected second record %+v", second)
	}
	if !second.Timestamp.Equal(time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", second.Timestamp)
	}
}

func TestParseCSVRequiresTimestampAndAmount(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("when,region\n2024-01-01,x\n"), DefaultMapping())
	if !errors.Is(err, errRequiredColumn) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestParseRows(t *testing.T) {
	rows := []map[string]any{
		{"timestamp": "2024-01-05", "amount": 10.5, "type": "auto"},
		{"timestamp": "1704067200", "amount": "20"},
		{"timestamp": nil, "amount": 3},
	}
	res := ParseRows(rows, DefaultMapping())
	if res.Accepted != 2 || res.Skipped != 1 {
		t.Fatalf("accepted=%d skipped=%d", res.Accepted, res.Skipped)
	}
	if !res.Schema.HasType || res.Schema.HasRegion {
		t.Fatalf("unexpected schema %+v", res.Schema)
	}
	if !res.Records[1].Timestamp.Equal(time.Unix(1704067200, 0)) {
		t.Fatalf("unix seconds not parsed: %s", res.Records[1].Timestamp)
	}
}

func TestNormalizeKey(t *testing.T) {
	for in, want := range map[string]string{
		"Loan Amount":     "loan_amount",
		"loanAmount":      "loan_amount",
		"loan_amount":     "loan_amount",
		"approval-status": "approval_status",
	} {
		if got := normalizeKey(in); got != want {
			t.Fatalf("normalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMappingOverlay(t *testing.T) {
	m := DefaultMapping().Overlay(Mapping{Amount: " Loan Amount ", Region: "state"})
	want := Mapping{Timestamp: "timestamp", Amount: "Loan Amount", Type: "type", Region: "state", ApprovalStatus: "approval_status"}
	if m != want {
		t.Fatalf("overlay = %+v, want %+v", m, want)
	}
}

func TestParseAmountBounds(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"$1,250.00", 1250, true},
		{"(40.10)", -40.1, true},
		{"1e200", 0, false},
		{"-2000000000000000", 0, false},
		{"1000000000000000", 1e15, true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.raw)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseAmount(%q) = %v, %v", tc.raw, got, err)
		}
	}
}
