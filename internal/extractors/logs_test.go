package extractors

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

func TestLogsExtractorBucketAndDetect(t *testing.T) {
	extractor := NewLogsExtractor()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(50 * time.Minute)}

	var entries []models.LogEntry
	for i := 0; i < 12; i++ {
		entries = append(entries, models.LogEntry{Timestamp: start.Add(41 * time.Minute)})
	}
	entries = append(entries, models.LogEntry{Timestamp: start.Add(3 * time.Minute)})

	buckets := extractor.Bucket(entries, window, 10*time.Minute)
	if len(buckets) != 6 {
		t.Fatalf("expected 6 buckets, got %d", len(buckets))
	}
	if buckets[4].Count != 12 || buckets[0].Count != 1 {
		t.Fatalf("unexpected counts %+v", buckets)
	}
	anomalies := extractor.Detect(buckets)
	if len(anomalies) != 1 || !anomalies[0].Timestamp.Equal(start.Add(40*time.Minute)) {
		t.Fatalf("expected one burst at 09:40, got %+v", anomalies)
	}
}

func TestBucketCountCapped(t *testing.T) {
	start := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.AddDate(300, 0, 0)}
	if n := BucketCount(window, time.Nanosecond); n != MaxLogBuckets+1 {
		t.Fatalf("expected capped count, got %d", n)
	}
	if buckets := NewLogsExtractor().Bucket(nil, window, time.Second); buckets != nil {
		t.Fatalf("expected nil buckets for oversized window, got %d", len(buckets))
	}
	if n := BucketCount(models.TimeRange{Start: start, End: start}, time.Minute); n != 0 {
		t.Fatalf("expected empty window to have no buckets, got %d", n)
	}
}
