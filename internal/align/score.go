package align

import (
	"sort"

	"github.com/glendonC/mallards/internal/contracts"
)

// temporalVarianceScale reads the hourly and weekday normalized variances
// (each in [0,1]) as percentage points off a perfect 100.
const temporalVarianceScale = 100.0

// neutralScore is returned whenever there is not enough data to see a deviation.
const neutralScore = 100.0

type factorWeights struct {
	temporal, regional, categorical float64
}

var focusWeights = map[FocusMode]factorWeights{
	FocusBalanced: {temporal: 1, regional: 1, categorical: 1},
	FocusPattern:  {temporal: 2, regional: 1, categorical: 1},
	FocusDecision: {temporal: 1, regional: 1, categorical: 2},
	FocusBias:     {temporal: 1, regional: 2, categorical: 1},
}

// windowAggregate is the union of a trailing run of buckets.
type windowAggregate struct {
	count    int
	hourly   [24]float64
	weekday  [7]float64
	byRegion map[string]float64
	byType   map[string]float64
}

// Score produces one ScorePoint per bucket. Each point scores the trailing
// window of WindowBuckets buckets ending at that bucket.
func Score(buckets []contracts.TimeBucket, schema contracts.Schema, s Settings) []contracts.ScorePoint {
	s = s.normalized()
	span := s.TimeRange.WindowBuckets()
	if span < 1 {
		span = 1
	}
	weights := focusWeights[s.Focus]

	points := make([]contracts.ScorePoint, len(buckets))
	for i, b := range buckets {
		from := i - span + 1
		if from < 0 {
			from = 0
		}
		agg := aggregateWindow(buckets[from : i+1])
		composite, factors := scoreWindow(agg, schema, weights)
		points[i] = contracts.ScorePoint{
			Timestamp:      b.Start,
			CompositeScore: composite,
			Factors:        factors,
			Volume:         round2(volume(b)),
			Count:          b.Count,
		}
	}
	return points
}

func aggregateWindow(buckets []contracts.TimeBucket) windowAggregate {
	agg := windowAggregate{
		byRegion: make(map[string]float64),
		byType:   make(map[string]float64),
	}
	for _, b := range buckets {
		agg.count += b.Count
		for h, c := range b.Hourly {
			agg.hourly[h] += float64(c)
		}
		for d, c := range b.Weekday {
			agg.weekday[d] += float64(c)
		}
		for k, g := range b.ByRegion {
			agg.byRegion[k] += g.Amount
		}
		for k, g := range b.ByType {
			agg.byType[k] += g.Amount
		}
	}
	return agg
}

// scoreWindow returns the weighted composite over the computable factors.
// Factors whose column is absent from the schema report 100 and are left
// out of the composite.
func scoreWindow(agg windowAggregate, schema contracts.Schema, w factorWeights) (float64, contracts.FactorScores) {
	factors := contracts.FactorScores{
		Temporal:    neutralScore,
		Regional:    neutralScore,
		Categorical: neutralScore,
	}
	if agg.count < 2 {
		return neutralScore, factors
	}

	factors.Temporal = TemporalScore(agg.hourly[:], agg.weekday[:])
	sum := factors.Temporal * w.temporal
	weight := w.temporal

	if schema.HasRegion {
		factors.Regional = DistributionScore(sortedValues(agg.byRegion))
		sum += factors.Regional * w.regional
		weight += w.regional
	}
	if schema.HasType {
		factors.Categorical = DistributionScore(sortedValues(agg.byType))
		sum += factors.Categorical * w.categorical
		weight += w.categorical
	}

	return clamp(round2(sum/weight), 0, 100), factors
}

// TemporalScore scores how evenly counts spread over hour-of-day and
// day-of-week slots.
func TemporalScore(hourly, weekday []float64) float64 {
	hv := NormalizedVariance(hourly)
	dv := NormalizedVariance(weekday)
	return clamp(round2(100-temporalVarianceScale*(hv+dv)), 0, 100)
}

// DistributionScore is 100 * (1 - normalized variance) of a volume distribution.
func DistributionScore(values []float64) float64 {
	return clamp(round2(100*(1-NormalizedVariance(values))), 0, 100)
}

// NormalizedVariance is mean(((x-mean)/mean)^2) over the positive entries,
// clamped to [0,1]. Fewer than two positive entries, or a zero mean, give 0.
func NormalizedVariance(values []float64) float64 {
	nonZero := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			nonZero = append(nonZero, v)
		}
	}
	if len(nonZero) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range nonZero {
		mean += v
	}
	mean /= float64(len(nonZero))
	if mean == 0 {
		return 0
	}
	acc := 0.0
	for _, v := range nonZero {
		d := (v - mean) / mean
		acc += d * d
	}
	return clamp(acc/float64(len(nonZero)), 0, 1)
}

// sortedValues returns map values ordered by key so float sums are reproducible.
func sortedValues(m map[string]float64) []float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
