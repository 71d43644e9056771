package toolkit

import (
	"fmt"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/extractors"
	"github.com/miradorstack/mirador-investigator/internal/models"
)

// MetricAnomalyResult lists z-score outliers for one metric.
type MetricAnomalyResult struct {
	Service   string                     `json:"service"`
	Metric    string                     `json:"metric_name"`
	Baseline  extractors.SeriesStats     `json:"baseline"`
	Anomalies []extractors.MetricAnomaly `json:"anomalies"`
	Count     int                        `json:"count"`
}

// DetectMetricAnomalies scores in-window samples of one metric against the
// window mean. A non-positive threshold uses extractors.DefaultZScore.
func (t *Toolkit) DetectMetricAnomalies(service, metric string, start, end time.Time, threshold float64) MetricAnomalyResult {
	window := models.TimeRange{Start: start, End: end}
	var series []models.MetricPoint
	for _, point := range t.store.Metrics() {
		if point.Service == service && point.MetricName == metric && window.Contains(point.Timestamp) {
			series = append(series, point)
		}
	}

	anomalies, stats := t.metrics.Detect(series, threshold)
	if anomalies == nil {
		anomalies = []extractors.MetricAnomaly{}
	}
	return MetricAnomalyResult{
		Service:   service,
		Metric:    metric,
		Baseline:  stats,
		Anomalies: anomalies,
		Count:     len(anomalies),
	}
}

// LogBurstResult lists intervals with abnormal log volume.
type LogBurstResult struct {
	Service  string                  `json:"service"`
	MinLevel models.LogLevel         `json:"min_level"`
	Buckets  []extractors.LogBucket  `json:"buckets"`
	Bursts   []extractors.LogAnomaly `json:"bursts"`
	Count    int                     `json:"count"`
}

// DetectLogBursts buckets entries at or above minLevel into fixed intervals
// across [start, end] and flags intervals whose volume departs from the median.
func (t *Toolkit) DetectLogBursts(service string, start, end time.Time, minLevel string, interval time.Duration) (LogBurstResult, error) {
	logs, err := t.SearchLogs(service, start, end, minLevel, "", len(t.store.Logs())+1)
	if err != nil {
		return LogBurstResult{}, err
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := models.TimeRange{Start: start, End: end}
	if n := extractors.BucketCount(window, interval); n > extractors.MaxLogBuckets {
		return LogBurstResult{}, fmt.Errorf("%w: window spans more than %d intervals of %s", ErrInvalidArgument, extractors.MaxLogBuckets, interval)
	}
	level, _ := models.ParseLogLevel(minLevel)

	buckets := t.logs.Bucket(logs.Logs, window, interval)
	bursts := t.logs.Detect(buckets)
	if bursts == nil {
		bursts = []extractors.LogAnomaly{}
	}
	return LogBurstResult{
		Service:  service,
		MinLevel: level,
		Buckets:  buckets,
		Bursts:   bursts,
		Count:    len(bursts),
	}, nil
}
