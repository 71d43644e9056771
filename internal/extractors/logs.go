package extractors

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// LogBucket is the number of entries at or above a level within one interval.
type LogBucket struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// LogAnomaly represents an error spike within a bucketed log stream.
type LogAnomaly struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	Score     float64   `json:"score"`
}

// MaxLogBuckets bounds the number of intervals Bucket will allocate.
const MaxLogBuckets = 10_000

// LogsExtractor spots volume spikes vs baseline.
type LogsExtractor struct{}

// NewLogsExtractor constructs a log anomaly detector.
func NewLogsExtractor() *LogsExtractor {
	return &LogsExtractor{}
}

// BucketCount returns how many intervals Bucket emits for the window.
func BucketCount(window models.TimeRange, interval time.Duration) int {
	if interval <= 0 || !window.End.After(window.Start) {
		return 0
	}
	n := float64(window.End.Sub(window.Start))/float64(interval) + 1
	if n > MaxLogBuckets {
		return MaxLogBuckets + 1
	}
	return int(n)
}

// Bucket counts entries per interval across [start, end]. Empty intervals are
// emitted with a zero count so the baseline reflects quiet periods. Windows
// needing more than MaxLogBuckets intervals yield nil.
func (e *LogsExtractor) Bucket(entries []models.LogEntry, window models.TimeRange, interval time.Duration) []LogBucket {
	n := BucketCount(window, interval)
	if n == 0 || n > MaxLogBuckets {
		return nil
	}
	buckets := make([]LogBucket, n)
	for i := range buckets {
		buckets[i].Timestamp = window.Start.Add(time.Duration(i) * interval)
	}
	for _, entry := range entries {
		if !window.Contains(entry.Timestamp) {
			continue
		}
		idx := int(entry.Timestamp.Sub(window.Start) / interval)
		if idx >= n {
			idx = n - 1
		}
		buckets[idx].Count++
	}
	return buckets
}

// Detect identifies buckets deviating from the median by at least three mean
// absolute deviations, or exceeding the median by 30% when the median is non-zero.
func (e *LogsExtractor) Detect(buckets []LogBucket) []LogAnomaly {
	if len(buckets) == 0 {
		return nil
	}

	counts := make([]float64, 0, len(buckets))
	for _, bucket := range buckets {
		counts = append(counts, float64(bucket.Count))
	}

	median := percentile(counts, 0.5)
	mad := meanAbsoluteDeviation(counts, median)
	if mad == 0 {
		mad = 1
	}

	anomalies := make([]LogAnomaly, 0)
	for _, bucket := range buckets {
		if bucket.Count == 0 {
			continue
		}
		score := math.Abs(float64(bucket.Count)-median) / mad
		switch {
		case score >= 3:
			anomalies = append(anomalies, LogAnomaly{Timestamp: bucket.Timestamp, Count: bucket.Count, Score: math.Round(score*100) / 100})
		case median > 0 && float64(bucket.Count) > median*1.3:
			anomalies = append(anomalies, LogAnomaly{Timestamp: bucket.Timestamp, Count: bucket.Count, Score: 3})
		}
	}
	return anomalies
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Round(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func meanAbsoluteDeviation(values []float64, center float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v - center)
	}
	return sum / float64(len(values))
}
