// Package align scores how evenly transaction activity is distributed over
// time, region and type, calibrates thresholds from the same data, and
// segments the resulting series into deviation events.
//
// Every entry point is a pure function of its inputs. Nothing in this package
// keeps state between calls except Memo, which only caches finished reports.
package align

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidSettings is the only error a recompute surfaces. It always
// indicates a configuration mistake, never a property of the data.
var ErrInvalidSettings = errors.New("invalid engine settings")

type TimeRange string

const (
	RangeDay     TimeRange = "24h"
	RangeWeek    TimeRange = "week"
	RangeMonth   TimeRange = "month"
	RangeQuarter TimeRange = "quarter"
	Range7d      TimeRange = "7d"
	Range30d     TimeRange = "30d"
)

// FocusMode selects which factor dominates the composite score.
type FocusMode string

const (
	FocusBalanced FocusMode = "balanced"
	FocusPattern  FocusMode = "pattern"
	FocusDecision FocusMode = "decision"
	FocusBias     FocusMode = "bias"
)

// Detector selects the signal the segmenter walks.
type Detector string

const (
	// DetectVolume opens an event when bucket volume rises above the alert level.
	DetectVolume Detector = "volume"
	// DetectScore opens an event when the composite score drops below Settings.Threshold.
	DetectScore Detector = "score"
)

const (
	DimensionRegion = "region"
	DimensionType   = "type"
)

type Settings struct {
	TimeRange      TimeRange `json:"timeRange" yaml:"timeRange"`
	Sensitivity    int       `json:"sensitivity" yaml:"sensitivity"`
	Threshold      float64   `json:"threshold" yaml:"threshold"`
	AlertThreshold float64   `json:"alertThreshold" yaml:"alertThreshold"`
	GroupBy        []string  `json:"groupBy,omitempty" yaml:"groupBy"`
	Focus          FocusMode `json:"focus,omitempty" yaml:"focus"`
	Detector       Detector  `json:"detector,omitempty" yaml:"detector"`
	// AsOf is the reference time for active/past classification. Zero means
	// the end of the last bucket, which keeps reports reproducible.
	AsOf time.Time `json:"asOf,omitempty" yaml:"asOf"`
}

func DefaultSettings() Settings {
	return Settings{
		TimeRange:      RangeWeek,
		Sensitivity:    3,
		Threshold:      70,
		AlertThreshold: 0.5,
		Focus:          FocusBalanced,
		Detector:       DetectVolume,
	}
}

// Validate fails fast on structurally invalid settings. It must run before
// any recompute; Recompute calls it itself.
func (s Settings) Validate() error {
	if _, ok := geometries[s.TimeRange]; !ok {
		return fmt.Errorf("%w: unknown timeRange %q", ErrInvalidSettings, s.TimeRange)
	}
	if s.Sensitivity < 0 {
		return fmt.Errorf("%w: sensitivity must be >= 0, got %d", ErrInvalidSettings, s.Sensitivity)
	}
	if math.IsNaN(s.Threshold) || s.Threshold < 0 || s.Threshold > 100 {
		return fmt.Errorf("%w: threshold must be within [0,100], got %v", ErrInvalidSettings, s.Threshold)
	}
	if math.IsNaN(s.AlertThreshold) || s.AlertThreshold < 0 || s.AlertThreshold > 1 {
		return fmt.Errorf("%w: alertThreshold must be within [0,1], got %v", ErrInvalidSettings, s.AlertThreshold)
	}
	switch s.Focus {
	case "", FocusBalanced, FocusPattern, FocusDecision, FocusBias:
	default:
		return fmt.Errorf("%w: unknown focus %q", ErrInvalidSettings, s.Focus)
	}
	switch s.Detector {
	case "", DetectVolume, DetectScore:
	default:
		return fmt.Errorf("%w: unknown detector %q", ErrInvalidSettings, s.Detector)
	}
	for _, g := range s.GroupBy {
		switch strings.ToLower(strings.TrimSpace(g)) {
		case DimensionRegion, DimensionType:
		default:
			return fmt.Errorf("%w: unsupported groupBy %q", ErrInvalidSettings, g)
		}
	}
	return nil
}

// normalized fills zero-valued enums with their defaults.
func (s Settings) normalized() Settings {
	if s.Focus == "" {
		s.Focus = FocusBalanced
	}
	if s.Detector == "" {
		s.Detector = DetectVolume
	}
	groups := make([]string, 0, len(s.GroupBy))
	seen := make(map[string]bool, len(s.GroupBy))
	for _, g := range s.GroupBy {
		g = strings.ToLower(strings.TrimSpace(g))
		if seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	s.GroupBy = groups
	return s
}

// geometry describes how a time range maps onto buckets.
type geometry struct {
	bucket time.Duration
	window time.Duration
}

var geometries = map[TimeRange]geometry{
	RangeDay:     {bucket: time.Hour, window: 24 * time.Hour},
	RangeWeek:    {bucket: 24 * time.Hour, window: 7 * 24 * time.Hour},
	Range7d:      {bucket: 24 * time.Hour, window: 7 * 24 * time.Hour},
	RangeMonth:   {bucket: 24 * time.Hour, window: 30 * 24 * time.Hour},
	Range30d:     {bucket: 24 * time.Hour, window: 30 * 24 * time.Hour},
	RangeQuarter: {bucket: 24 * time.Hour, window: 90 * 24 * time.Hour},
}

// BucketWidth returns the bucket width for a validated range.
func (r TimeRange) BucketWidth() time.Duration {
	return geometries[r].bucket
}

// Window returns the nominal window width for a validated range.
func (r TimeRange) Window() time.Duration {
	return geometries[r].window
}

// WindowBuckets is the number of buckets covered by one window.
func (r TimeRange) WindowBuckets() int {
	g := geometries[r]
	if g.bucket <= 0 {
		return 1
	}
	return int(g.window / g.bucket)
}

// WarmupBuckets is the number of buckets the segmenter observes before it
// may open an event. It grows with the window so quarterly views need more
// history than weekly ones.
func (s Settings) WarmupBuckets() int {
	week := 7 * 24 * time.Hour
	units := int(math.Ceil(float64(s.TimeRange.Window()) / float64(week)))
	if units < 1 {
		units = 1
	}
	return s.Sensitivity * units
}

// alertMultiplier maps AlertThreshold in [0,1] onto [2.0, 3.0] standard
// deviations so the alert level never sits under the high tier.
func (s Settings) alertMultiplier() float64 {
	return highMultiplier + s.AlertThreshold
}
