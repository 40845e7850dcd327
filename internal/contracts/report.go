package contracts

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so callers can filter with a minimum tier.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type EventStatus string

const (
	EventActive EventStatus = "active"
	EventPast   EventStatus = "past"
)

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

type ReportStatus string

const (
	ReportOK               ReportStatus = "ok"
	ReportInsufficientData ReportStatus = "insufficient_data"
)

type GroupStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// TimeBucket aggregates the records whose timestamp falls in [Start, End).
type TimeBucket struct {
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Count       int                  `json:"count"`
	TotalAmount float64              `json:"totalAmount"`
	Approvals   int                  `json:"approvals"`
	Rejections  int                  `json:"rejections"`
	ByRegion    map[string]GroupStat `json:"byRegion,omitempty"`
	ByType      map[string]GroupStat `json:"byType,omitempty"`
	Hourly      [24]int              `json:"-"`
	Weekday     [7]int               `json:"-"`
}

type FactorScores struct {
	Temporal    float64 `json:"temporal"`
	Regional    float64 `json:"regional"`
	Categorical float64 `json:"categorical"`
}

type ScorePoint struct {
	Timestamp      time.Time    `json:"timestamp"`
	CompositeScore float64      `json:"compositeScore"`
	Factors        FactorScores `json:"factors"`
	Volume         float64      `json:"volume"`
	Count          int          `json:"count"`
}

// Thresholds always satisfy Low <= Medium <= High <= Alert.
type Thresholds struct {
	Alert  float64 `json:"alert"`
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
	Low    float64 `json:"low"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

type WindowStats struct {
	Buckets      int     `json:"buckets"`
	Records      int     `json:"records"`
	Volume       float64 `json:"volume"`
	Score        float64 `json:"score"`
	ApprovalRate float64 `json:"approvalRate"`
}

type EventMetrics struct {
	Before *WindowStats `json:"before,omitempty"`
	During WindowStats  `json:"during"`
	After  *WindowStats `json:"after,omitempty"`
}

// Event is a detected deviation interval. Open is true when the scan ended
// before the signal dropped back under threshold; Status additionally
// compares End against the report's reference time.
type Event struct {
	ID        string       `json:"id"`
	Start     time.Time    `json:"start"`
	End       time.Time    `json:"end"`
	Status    EventStatus  `json:"status"`
	Open      bool         `json:"open"`
	Intensity float64      `json:"intensity"`
	Severity  Severity     `json:"severity"`
	Metrics   EventMetrics `json:"metrics"`
	Trend     Trend        `json:"trend"`
}

type GroupReport struct {
	Dimension    string       `json:"dimension"`
	Value        string       `json:"value"`
	Status       ReportStatus `json:"status"`
	CurrentScore float64      `json:"currentScore"`
	TrendPercent float64      `json:"trendPercent"`
	Thresholds   Thresholds   `json:"thresholds"`
	History      []ScorePoint `json:"history"`
	Events       []Event      `json:"events"`
}

type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	Actual    *float64  `json:"actual,omitempty"`
}

type Forecast struct {
	Points     []ForecastPoint `json:"points"`
	ModelUsed  string          `json:"modelUsed"`
	Confidence float64         `json:"confidence"`
	Stale      bool            `json:"stale,omitempty"`
}

// AlignmentReport is rebuilt from scratch on every recompute.
type AlignmentReport struct {
	DatasetID    string        `json:"datasetId,omitempty"`
	Status       ReportStatus  `json:"status"`
	TimeRange    string        `json:"timeRange"`
	Detector     string        `json:"detector"`
	Focus        string        `json:"focus"`
	AsOf         time.Time     `json:"asOf"`
	CurrentScore float64       `json:"currentScore"`
	TrendPercent float64       `json:"trendPercent"`
	Thresholds   Thresholds    `json:"thresholds"`
	History      []ScorePoint  `json:"history"`
	Events       []Event       `json:"events"`
	Groups       []GroupReport `json:"groups,omitempty"`
	Forecast     *Forecast     `json:"forecast,omitempty"`
}
