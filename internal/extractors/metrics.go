package extractors

import (
	"math"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// DefaultZScore is the anomaly threshold used when callers pass none.
const DefaultZScore = 2.5

// MetricAnomaly captures an anomalous metric sample.
type MetricAnomaly struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
}

// SeriesStats describes the baseline an anomaly was scored against.
type SeriesStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Points int     `json:"points"`
}

// MetricExtractor detects upward excursions using a z-score over the series.
type MetricExtractor struct{}

// NewMetricExtractor creates a metrics anomaly detector.
func NewMetricExtractor() *MetricExtractor {
	return &MetricExtractor{}
}

// Detect finds samples whose z-score meets threshold. Series order is preserved.
func (e *MetricExtractor) Detect(series []models.MetricPoint, threshold float64) ([]MetricAnomaly, SeriesStats) {
	if len(series) == 0 {
		return nil, SeriesStats{}
	}
	if threshold <= 0 {
		threshold = DefaultZScore
	}

	stats := describe(series)
	stdDev := stats.StdDev
	if stdDev == 0 {
		stdDev = 0.01
	}

	anomalies := make([]MetricAnomaly, 0)
	for _, point := range series {
		score := (point.Value - stats.Mean) / stdDev
		if score >= threshold {
			anomalies = append(anomalies, MetricAnomaly{
				Timestamp: point.Timestamp,
				Value:     point.Value,
				Score:     math.Round(score*100) / 100,
				Threshold: threshold,
			})
		}
	}
	return anomalies, stats
}

func describe(series []models.MetricPoint) SeriesStats {
	mean := 0.0
	for _, point := range series {
		mean += point.Value
	}
	mean /= float64(len(series))

	variance := 0.0
	for _, point := range series {
		variance += math.Pow(point.Value-mean, 2)
	}
	variance /= float64(len(series))
	return SeriesStats{Mean: mean, StdDev: math.Sqrt(variance), Points: len(series)}
}
