package align

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/glendonC/mallards/internal/contracts"
)

// eventNamespace scopes deterministic event IDs.
var eventNamespace = uuid.MustParse("6f1c2a57-8d0e-4f5b-9a53-3c1e8b7d2f40")

// trendBand is the relative change under which an event's trend is stable.
const trendBand = 0.05

// Recompute builds a report from the full dataset. Identical inputs always
// produce identical reports. Only invalid settings return an error; empty
// or degenerate data yields an insufficient_data report with neutral scores.
func Recompute(ds contracts.Dataset, s Settings) (contracts.AlignmentReport, error) {
	if err := s.Validate(); err != nil {
		return contracts.AlignmentReport{}, err
	}
	s = s.normalized()

	st := buildStream(ds.ID, "", ds.Records, ds.Schema, s)
	report := contracts.AlignmentReport{
		DatasetID:    ds.ID,
		Status:       st.status,
		TimeRange:    string(s.TimeRange),
		Detector:     string(s.Detector),
		Focus:        string(s.Focus),
		AsOf:         st.asOf,
		CurrentScore: st.current,
		TrendPercent: st.trend,
		Thresholds:   st.thresholds,
		History:      st.points,
		Events:       st.events,
	}
	report.Groups = recomputeGroups(ds, s)
	return report, nil
}

type streamResult struct {
	status     contracts.ReportStatus
	asOf       time.Time
	current    float64
	trend      float64
	thresholds contracts.Thresholds
	points     []contracts.ScorePoint
	events     []contracts.Event
}

// buildStream runs aggregation, scoring, calibration and segmentation for
// one ordered stream of records.
func buildStream(datasetID, scope string, records []contracts.TransactionRecord, schema contracts.Schema, s Settings) streamResult {
	buckets := Aggregate(records, s.TimeRange.BucketWidth())
	res := streamResult{
		status:  contracts.ReportInsufficientData,
		current: neutralScore,
		points:  []contracts.ScorePoint{},
		events:  []contracts.Event{},
		asOf:    s.AsOf,
	}
	if len(buckets) == 0 {
		return res
	}
	if res.asOf.IsZero() {
		res.asOf = buckets[len(buckets)-1].End
	}

	points := Score(buckets, schema, s)
	res.points = points
	res.current = points[len(points)-1].CompositeScore
	res.trend = TrendPercent(points)
	if totalRecords(buckets) >= 2 {
		res.status = contracts.ReportOK
	}

	signal := detectorSignal(points, s.Detector)
	res.thresholds = Calibrate(signal, s.alertMultiplier())

	inside := func(i int) bool { return signal[i] > res.thresholds.Alert }
	if s.Detector == DetectScore {
		inside = func(i int) bool { return points[i].CompositeScore < s.Threshold }
	}

	spans := Segment(len(points), s.WarmupBuckets(), inside)
	span := s.TimeRange.WindowBuckets()
	for _, sp := range spans {
		res.events = append(res.events, buildEvent(datasetID, scope, sp, buckets, points, signal, res.thresholds, span, res.asOf, s.Detector))
	}
	return res
}

// detectorSignal is the series the detector segments on; larger means more anomalous.
func detectorSignal(points []contracts.ScorePoint, d Detector) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		if d == DetectScore {
			out[i] = 100 - p.CompositeScore
		} else {
			out[i] = p.Volume
		}
	}
	return out
}

func buildEvent(datasetID, scope string, sp Span, buckets []contracts.TimeBucket, points []contracts.ScorePoint, signal []float64, t contracts.Thresholds, span int, asOf time.Time, d Detector) contracts.Event {
	start := buckets[sp.Start].Start
	end := buckets[sp.End].End
	if !sp.Open {
		// the bucket that fell back under threshold closes the event
		end = buckets[sp.End+1].Start
	}

	during := windowStats(buckets, points, sp.Start, sp.End)
	metrics := contracts.EventMetrics{During: during}
	if sp.Start > 0 {
		before := windowStats(buckets, points, max(0, sp.Start-span), sp.Start-1)
		metrics.Before = &before
	}
	if !sp.Open {
		after := windowStats(buckets, points, sp.End+1, min(len(buckets)-1, sp.End+span))
		metrics.After = &after
	}

	intensity := round2(math.Abs(meanOf(signal[sp.Start : sp.End+1])))

	status := contracts.EventPast
	if sp.Open || !end.Before(asOf) {
		status = contracts.EventActive
	}

	return contracts.Event{
		ID:        eventID(datasetID, scope, d, start),
		Start:     start,
		End:       end,
		Status:    status,
		Open:      sp.Open,
		Intensity: intensity,
		Severity:  Classify(intensity, t),
		Metrics:   metrics,
		Trend:     eventTrend(metrics, points, d),
	}
}

// eventID is stable across recomputes while the event keeps its start.
func eventID(datasetID, scope string, d Detector, start time.Time) string {
	key := fmt.Sprintf("%s|%s|%s|%d", datasetID, scope, d, start.Unix())
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

func windowStats(buckets []contracts.TimeBucket, points []contracts.ScorePoint, from, to int) contracts.WindowStats {
	var ws contracts.WindowStats
	if from > to {
		return ws
	}
	vol, score := 0.0, 0.0
	approvals, rejections := 0, 0
	for i := from; i <= to; i++ {
		ws.Buckets++
		ws.Records += buckets[i].Count
		vol += points[i].Volume
		score += points[i].CompositeScore
		approvals += buckets[i].Approvals
		rejections += buckets[i].Rejections
	}
	ws.Volume = round2(vol / float64(ws.Buckets))
	ws.Score = round2(score / float64(ws.Buckets))
	if decided := approvals + rejections; decided > 0 {
		ws.ApprovalRate = round2(float64(approvals) / float64(decided))
	}
	return ws
}

// eventTrend compares the during window to the window before it, or to the
// whole series when the event starts at the first bucket.
func eventTrend(m contracts.EventMetrics, points []contracts.ScorePoint, d Detector) contracts.Trend {
	pick := func(ws contracts.WindowStats) float64 {
		if d == DetectScore {
			return ws.Score
		}
		return ws.Volume
	}
	current := pick(m.During)
	var ref float64
	if m.Before != nil && m.Before.Buckets > 0 {
		ref = pick(*m.Before)
	} else {
		series := make([]float64, len(points))
		for i, p := range points {
			if d == DetectScore {
				series[i] = p.CompositeScore
			} else {
				series[i] = p.Volume
			}
		}
		ref = meanOf(series)
	}

	if ref == 0 {
		switch {
		case current > 0:
			return contracts.TrendIncreasing
		case current < 0:
			return contracts.TrendDecreasing
		default:
			return contracts.TrendStable
		}
	}
	rel := (current - ref) / math.Abs(ref)
	switch {
	case rel > trendBand:
		return contracts.TrendIncreasing
	case rel < -trendBand:
		return contracts.TrendDecreasing
	default:
		return contracts.TrendStable
	}
}

// TrendPercent is the signed change between the two most recent composite
// scores. It is 0 with fewer than two points or a zero previous score.
func TrendPercent(points []contracts.ScorePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	prev := points[len(points)-2].CompositeScore
	cur := points[len(points)-1].CompositeScore
	if prev == 0 {
		return 0
	}
	return round2((cur - prev) / prev * 100)
}

func totalRecords(buckets []contracts.TimeBucket) int {
	n := 0
	for _, b := range buckets {
		n += b.Count
	}
	return n
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return max
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
