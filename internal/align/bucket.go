package align

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glendonC/mallards/internal/contracts"
)

// maxBuckets bounds the contiguous series. When the records span more than
// this many buckets only the most recent ones are kept.
const maxBuckets = 20000

// MaxAmount bounds a single record's magnitude. Larger amounts are treated
// as corrupt input so bucket sums and variances stay finite.
const MaxAmount = 1e15

type bucketBuilder struct {
	bucket   contracts.TimeBucket
	total    decimal.Decimal
	byRegion map[string]*groupBuilder
	byType   map[string]*groupBuilder
}

type groupBuilder struct {
	count  int
	amount decimal.Decimal
}

// Aggregate partitions records into contiguous, ascending buckets of the
// given width. Records without a timestamp or with a non-finite or
// out-of-range amount are skipped. Empty input yields an empty slice.
func Aggregate(records []contracts.TransactionRecord, width time.Duration) []contracts.TimeBucket {
	if width <= 0 {
		return nil
	}
	valid := make([]contracts.TransactionRecord, 0, len(records))
	for _, r := range records {
		if !usable(r) {
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return []contracts.TimeBucket{}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})

	step := int64(width / time.Second)
	if step <= 0 {
		step = 1
	}
	first := bucketKey(valid[0].Timestamp, step)
	last := bucketKey(valid[len(valid)-1].Timestamp, step)
	if last-first+1 > maxBuckets {
		first = last - maxBuckets + 1
	}

	builders := make([]*bucketBuilder, last-first+1)
	for i := range builders {
		start := time.Unix((first+int64(i))*step, 0).UTC()
		builders[i] = &bucketBuilder{
			bucket: contracts.TimeBucket{Start: start, End: start.Add(width)},
		}
	}

	for _, r := range valid {
		key := bucketKey(r.Timestamp, step)
		if key < first {
			continue
		}
		builders[key-first].add(r)
	}

	out := make([]contracts.TimeBucket, len(builders))
	for i, b := range builders {
		out[i] = b.finish()
	}
	return out
}

func usable(r contracts.TransactionRecord) bool {
	if r.Timestamp.IsZero() {
		return false
	}
	return !math.IsNaN(r.Amount) && math.Abs(r.Amount) <= MaxAmount
}

// bucketKey is floor(unix seconds / step), correct for pre-epoch times.
func bucketKey(t time.Time, step int64) int64 {
	sec := t.Unix()
	key := sec / step
	if sec%step != 0 && sec < 0 {
		key--
	}
	return key
}

func (b *bucketBuilder) add(r contracts.TransactionRecord) {
	amount := decimal.NewFromFloat(r.Amount)
	b.bucket.Count++
	b.total = b.total.Add(amount)

	ts := r.Timestamp.UTC()
	b.bucket.Hourly[ts.Hour()]++
	b.bucket.Weekday[int(ts.Weekday())]++

	switch r.ApprovalStatus {
	case contracts.ApprovalApproved:
		b.bucket.Approvals++
	case contracts.ApprovalRejected:
		b.bucket.Rejections++
	}

	if r.Region != "" {
		if b.byRegion == nil {
			b.byRegion = make(map[string]*groupBuilder)
		}
		addGroup(b.byRegion, r.Region, amount)
	}
	if r.Type != "" {
		if b.byType == nil {
			b.byType = make(map[string]*groupBuilder)
		}
		addGroup(b.byType, r.Type, amount)
	}
}

func addGroup(groups map[string]*groupBuilder, key string, amount decimal.Decimal) {
	g, ok := groups[key]
	if !ok {
		g = &groupBuilder{}
		groups[key] = g
	}
	g.count++
	g.amount = g.amount.Add(amount)
}

func (b *bucketBuilder) finish() contracts.TimeBucket {
	out := b.bucket
	out.TotalAmount = b.total.InexactFloat64()
	out.ByRegion = finishGroups(b.byRegion)
	out.ByType = finishGroups(b.byType)
	return out
}

func finishGroups(groups map[string]*groupBuilder) map[string]contracts.GroupStat {
	if len(groups) == 0 {
		return nil
	}
	out := make(map[string]contracts.GroupStat, len(groups))
	for k, g := range groups {
		out[k] = contracts.GroupStat{Count: g.count, Amount: g.amount.InexactFloat64()}
	}
	return out
}

// volume is the signal the volume detector segments on.
func volume(b contracts.TimeBucket) float64 {
	return b.TotalAmount
}
