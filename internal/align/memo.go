package align

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/glendonC/mallards/internal/contracts"
)

// ErrSuperseded is returned alongside a valid report when a newer
// recompute of the same dataset started before this one finished. The
// report was not published as latest and the caller should drop it.
var ErrSuperseded = errors.New("recompute superseded by a newer generation")

const defaultMemoEntries = 64

// Memo caches finished reports by (dataset version, settings). Each dataset
// has its own generation counter and only the newest generation of a
// dataset is published as its latest report.
type Memo struct {
	mu      sync.Mutex
	limit   int
	order   []string
	entries map[string]contracts.AlignmentReport
	gens    map[string]uint64
	latest  map[string]published
}

type published struct {
	gen    uint64
	report contracts.AlignmentReport
}

func NewMemo(limit int) *Memo {
	if limit <= 0 {
		limit = defaultMemoEntries
	}
	return &Memo{
		limit:   limit,
		entries: make(map[string]contracts.AlignmentReport, limit),
		gens:    make(map[string]uint64),
		latest:  make(map[string]published),
	}
}

// Report returns the cached report for the inputs or recomputes it. hit
// reports whether the cache answered. Invalid settings fail before any work.
func (m *Memo) Report(ds contracts.Dataset, s Settings) (report contracts.AlignmentReport, hit bool, err error) {
	if err := s.Validate(); err != nil {
		return contracts.AlignmentReport{}, false, err
	}
	key, err := Key(ds, s)
	if err != nil {
		return contracts.AlignmentReport{}, false, err
	}
	gen := m.begin(ds.ID)

	m.mu.Lock()
	cached, ok := m.entries[key]
	m.mu.Unlock()

	if ok {
		report, hit = cached, true
	} else {
		report, err = Recompute(ds, s)
		if err != nil {
			return contracts.AlignmentReport{}, false, err
		}
		m.store(key, report)
	}

	if !m.publish(ds.ID, gen, report) {
		return report, hit, ErrSuperseded
	}
	return report, hit, nil
}

// Latest returns the most recently published report of a dataset and the
// generation that produced it.
func (m *Memo) Latest(datasetID string) (contracts.AlignmentReport, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.latest[datasetID]
	return p.report, p.gen, ok
}

func (m *Memo) begin(datasetID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[datasetID]++
	return m.gens[datasetID]
}

// publish stores report as latest unless a newer generation of the same
// dataset has started. Check and store happen under one lock.
func (m *Memo) publish(datasetID string, gen uint64, report contracts.AlignmentReport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[datasetID] != gen {
		return false
	}
	m.latest[datasetID] = published{gen: gen, report: report}
	return true
}

func (m *Memo) store(key string, report contracts.AlignmentReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return
	}
	m.entries[key] = report
	m.order = append(m.order, key)
	for len(m.order) > m.limit {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
}

// Key hashes the dataset version and normalized settings. Datasets without
// an explicit version are fingerprinted from their records.
func Key(ds contracts.Dataset, s Settings) (string, error) {
	version := ds.Version
	if version == "" {
		version = Fingerprint(ds)
	}
	body, err := json.Marshal(s.normalized())
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(ds.ID))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint digests the schema and every record in order.
func Fingerprint(ds contracts.Dataset) string {
	h := sha256.New()
	var buf [8]byte
	flags := []bool{ds.Schema.HasType, ds.Schema.HasRegion, ds.Schema.HasApproval}
	for _, f := range flags {
		if f {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	for _, r := range ds.Records {
		binary.BigEndian.PutUint64(buf[:], uint64(r.Timestamp.UnixNano()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(r.Amount))
		h.Write(buf[:])
		for _, s := range []string{r.Type, r.Region, string(r.ApprovalStatus)} {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
