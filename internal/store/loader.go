package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Dataset file names inside a dataset directory.
const (
	AlertsFile     = "alerts.json"
	MetricsFile    = "metrics.json"
	ChangesFile    = "changes.json"
	ServiceMapFile = "service_map.json"
	LogsFile       = "logs.jsonl"
)

type rawAlert struct {
	AlertID   string `json:"alert_id"`
	ID        string `json:"id"`
	Service   string `json:"service"`
	Severity  string `json:"severity"`
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type rawMetric struct {
	Service    string  `json:"service"`
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Timestamp  string  `json:"timestamp"`
}

type rawLog struct {
	Service   string         `json:"service"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// LoadDir reads the five dataset files from dir and returns a frozen snapshot.
// Any missing or malformed file is an error.
func LoadDir(dir string) (*Snapshot, error) {
	var (
		alerts   []rawAlert
		metrics  []rawMetric
		changes  []json.RawMessage
		topology models.Topology
		logs     []rawLog
	)

	var g errgroup.Group
	g.Go(func() error { return readJSON(filepath.Join(dir, AlertsFile), &alerts) })
	g.Go(func() error { return readJSON(filepath.Join(dir, MetricsFile), &metrics) })
	g.Go(func() error { return readJSON(filepath.Join(dir, ChangesFile), &changes) })
	g.Go(func() error { return readJSON(filepath.Join(dir, ServiceMapFile), &topology) })
	g.Go(func() error {
		var err error
		logs, err = readJSONL(filepath.Join(dir, LogsFile))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, utils.NewAppError("store.LoadDir", "load dataset", err)
	}

	ds := Dataset{Topology: topology}
	if ds.Topology == nil {
		ds.Topology = models.Topology{}
	}
	for i, raw := range alerts {
		alert, err := convertAlert(raw)
		if err != nil {
			return nil, utils.NewAppError("store.LoadDir", fmt.Sprintf("%s record %d", AlertsFile, i), err)
		}
		ds.Alerts = append(ds.Alerts, alert)
	}
	for i, raw := range metrics {
		ts, err := utils.ParseTimestamp(raw.Timestamp)
		if err != nil {
			return nil, utils.NewAppError("store.LoadDir", fmt.Sprintf("%s record %d", MetricsFile, i), err)
		}
		ds.Metrics = append(ds.Metrics, models.MetricPoint{
			Service:    raw.Service,
			MetricName: raw.MetricName,
			Value:      raw.Value,
			Unit:       raw.Unit,
			Timestamp:  ts,
		})
	}
	for i, raw := range changes {
		change, err := convertChange(raw)
		if err != nil {
			return nil, utils.NewAppError("store.LoadDir", fmt.Sprintf("%s record %d", ChangesFile, i), err)
		}
		ds.Changes = append(ds.Changes, change)
	}
	for i, raw := range logs {
		entry, err := convertLog(raw)
		if err != nil {
			return nil, utils.NewAppError("store.LoadDir", fmt.Sprintf("%s line %d", LogsFile, i+1), err)
		}
		ds.Logs = append(ds.Logs, entry)
	}

	return NewSnapshot(ds), nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSONL(path string) ([]rawLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var out []rawLog
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var entry rawLog
		if err := json.Unmarshal(text, &entry); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", filepath.Base(path), line, err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func convertAlert(raw rawAlert) (models.Alert, error) {
	id := raw.AlertID
	if id == "" {
		id = raw.ID
	}
	sev, err := models.ParseSeverity(raw.Severity)
	if err != nil {
		return models.Alert{}, err
	}
	ts, err := utils.ParseTimestamp(raw.Timestamp)
	if err != nil {
		return models.Alert{}, err
	}
	alert := models.Alert{
		AlertID:   id,
		Service:   raw.Service,
		Severity:  sev,
		AlertType: raw.AlertType,
		Message:   raw.Message,
		Timestamp: ts,
	}
	return alert, alert.Validate()
}

func convertChange(raw json.RawMessage) (models.ChangeEvent, error) {
	var withTime struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &withTime); err != nil {
		return models.ChangeEvent{}, err
	}
	ts, err := utils.ParseTimestamp(withTime.Timestamp)
	if err != nil {
		return models.ChangeEvent{}, err
	}

	// Timestamp is parsed separately so offset-less values are accepted.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.ChangeEvent{}, err
	}
	delete(fields, "timestamp")
	stripped, err := json.Marshal(fields)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	var change models.ChangeEvent
	if err := json.Unmarshal(stripped, &change); err != nil {
		return models.ChangeEvent{}, err
	}
	change.Timestamp = ts
	change.Kind = models.ChangeKind(strings.ToLower(string(change.Kind)))
	if change.Service == "" {
		return models.ChangeEvent{}, fmt.Errorf("service is required")
	}
	return change, nil
}

func convertLog(raw rawLog) (models.LogEntry, error) {
	level, err := models.ParseLogLevel(raw.Level)
	if err != nil {
		return models.LogEntry{}, err
	}
	ts, err := utils.ParseTimestamp(raw.Timestamp)
	if err != nil {
		return models.LogEntry{}, err
	}
	return models.LogEntry{
		Service:   raw.Service,
		Level:     level,
		Message:   raw.Message,
		Timestamp: ts,
		Metadata:  raw.Metadata,
	}, nil
}
