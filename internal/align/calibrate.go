package align

import (
	"math"

	"github.com/glendonC/mallards/internal/contracts"
)

const (
	lowMultiplier    = 1.0
	mediumMultiplier = 1.5
	highMultiplier   = 2.0
)

// MeanStdDev returns the population mean and standard deviation. Non-finite
// values are ignored; an empty input yields (0, 0). Values are scaled by
// their largest magnitude first so squaring never overflows.
func MeanStdDev(values []float64) (float64, float64) {
	n := 0
	scale := 0.0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		n++
		scale = math.Max(scale, math.Abs(v))
	}
	if n == 0 || scale == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v / scale
	}
	mean := sum / float64(n)
	acc := 0.0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		d := v/scale - mean
		acc += d * d
	}
	return mean * scale, math.Sqrt(acc/float64(n)) * scale
}

// Calibrate derives severity tiers and the alert level from the series'
// own distribution as mean + k*stddev. alertK below the high multiplier is
// raised to it, so Low <= Medium <= High <= Alert always holds. With zero
// spread every tier collapses onto the mean.
func Calibrate(values []float64, alertK float64) contracts.Thresholds {
	mean, sd := MeanStdDev(values)
	if !isFinite(mean) || !isFinite(sd) {
		mean, sd = 0, 0
	}
	if math.IsNaN(alertK) || alertK < highMultiplier {
		alertK = highMultiplier
	}
	return contracts.Thresholds{
		Low:    round2(mean + lowMultiplier*sd),
		Medium: round2(mean + mediumMultiplier*sd),
		High:   round2(mean + highMultiplier*sd),
		Alert:  round2(mean + alertK*sd),
		Mean:   round2(mean),
		StdDev: round2(sd),
	}
}

// Classify maps an intensity onto a severity tier.
func Classify(intensity float64, t contracts.Thresholds) contracts.Severity {
	switch {
	case intensity > t.High:
		return contracts.SeverityHigh
	case intensity > t.Medium:
		return contracts.SeverityMedium
	default:
		return contracts.SeverityLow
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
