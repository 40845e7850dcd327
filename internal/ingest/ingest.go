// Package ingest converts loosely typed rows into transaction records.
//
// Rows come from CSV uploads or JSON payloads whose column names vary by
// source, so a Mapping names the column for each field. Rows whose
// timestamp or amount cannot be parsed are skipped and counted, never fatal.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/contracts"
)

type Mapping struct {
	Timestamp      string `json:"timestamp" yaml:"timestamp"`
	Amount         string `json:"amount" yaml:"amount"`
	Type           string `json:"type" yaml:"type"`
	Region         string `json:"region" yaml:"region"`
	ApprovalStatus string `json:"approvalStatus" yaml:"approvalStatus"`
}

func DefaultMapping() Mapping {
	return Mapping{
		Timestamp:      "timestamp",
		Amount:         "amount",
		Type:           "type",
		Region:         "region",
		ApprovalStatus: "approval_status",
	}
}

// Overlay returns m with every non-empty column of o applied.
func (m Mapping) Overlay(o Mapping) Mapping {
	pick := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	pick(&m.Timestamp, o.Timestamp)
	pick(&m.Amount, o.Amount)
	pick(&m.Type, o.Type)
	pick(&m.Region, o.Region)
	pick(&m.ApprovalStatus, o.ApprovalStatus)
	return m
}

// withDefaults fills the two required columns when the caller left them blank.
func (m Mapping) withDefaults() Mapping {
	d := DefaultMapping()
	if strings.TrimSpace(m.Timestamp) == "" {
		m.Timestamp = d.Timestamp
	}
	if strings.TrimSpace(m.Amount) == "" {
		m.Amount = d.Amount
	}
	return m
}

type Result struct {
	Schema   contracts.Schema
	Records  []contracts.TransactionRecord
	Accepted int
	Skipped  int
}

// maxAmount matches the engine's per-record bound.
var maxAmount = decimal.NewFromFloat(align.MaxAmount)

var errRequiredColumn = errors.New("required column missing")

// ParseCSV reads a CSV document with a header row.
func ParseCSV(r io.Reader, m Mapping) (Result, error) {
	m = m.withDefaults()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeKey(h)] = i
	}
	col := func(name string) int {
		if strings.TrimSpace(name) == "" {
			return -1
		}
		if i, ok := index[normalizeKey(name)]; ok {
			return i
		}
		return -1
	}
	tsCol, amountCol := col(m.Timestamp), col(m.Amount)
	if tsCol < 0 || amountCol < 0 {
		return Result{}, fmt.Errorf("%w: need %q and %q", errRequiredColumn, m.Timestamp, m.Amount)
	}
	typeCol, regionCol, approvalCol := col(m.Type), col(m.Region), col(m.ApprovalStatus)

	res := Result{
		Schema: contracts.Schema{
			HasType:     typeCol >= 0,
			HasRegion:   regionCol >= 0,
			HasApproval: approvalCol >= 0,
		},
	}
	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Skipped++
			continue
		}
		rec, ok := buildRecord(cell(row, tsCol), cell(row, amountCol), cell(row, typeCol), cell(row, regionCol), cell(row, approvalCol))
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
		res.Accepted++
	}
	return res, nil
}

// ParseRows maps decoded JSON objects. Optional columns count as present
// when at least one row carries them.
func ParseRows(rows []map[string]any, m Mapping) Result {
	m = m.withDefaults()
	var res Result
	for _, raw := range rows {
		row := make(map[string]any, len(raw))
		for k, v := range raw {
			row[normalizeKey(k)] = v
		}
		get := func(name string) (string, bool) {
			if strings.TrimSpace(name) == "" {
				return "", false
			}
			v, ok := row[normalizeKey(name)]
			if !ok || v == nil {
				return "", false
			}
			return stringify(v), true
		}
		ts, _ := get(m.Timestamp)
		amount, _ := get(m.Amount)
		typ, hasType := get(m.Type)
		region, hasRegion := get(m.Region)
		approval, hasApproval := get(m.ApprovalStatus)
		res.Schema.HasType = res.Schema.HasType || hasType
		res.Schema.HasRegion = res.Schema.HasRegion || hasRegion
		res.Schema.HasApproval = res.Schema.HasApproval || hasApproval

		rec, ok := buildRecord(ts, amount, typ, region, approval)
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
		res.Accepted++
	}
	return res
}

func buildRecord(ts, amount, typ, region, approval string) (contracts.TransactionRecord, bool) {
	when, err := ParseTimestamp(ts)
	if err != nil {
		return contracts.TransactionRecord{}, false
	}
	value, err := ParseAmount(amount)
	if err != nil {
		return contracts.TransactionRecord{}, false
	}
	return contracts.TransactionRecord{
		Timestamp:      when,
		Amount:         value,
		Type:           strings.TrimSpace(typ),
		Region:         strings.TrimSpace(region),
		ApprovalStatus: ParseApproval(approval),
	}, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006/01/02",
}

// ParseTimestamp accepts the common layouts seen in exports, or unix
// seconds. Times without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ParseAmount reads monetary text such as "$1,250.00" or "(40.10)".
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '$' || r == '€' || r == '£' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	if d.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	return d.InexactFloat64(), nil
}

func ParseApproval(raw string) contracts.ApprovalStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approve", "accepted", "yes", "y", "true", "1":
		return contracts.ApprovalApproved
	case "rejected", "reject", "denied", "declined", "no", "n", "false", "0":
		return contracts.ApprovalRejected
	case "pending", "review", "in_review":
		return contracts.ApprovalPending
	default:
		return contracts.ApprovalUnknown
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// normalizeKey lowercases and snake-cases a column name so "Loan Amount",
// "loanAmount" and "loan_amount" match.
func normalizeKey(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}
