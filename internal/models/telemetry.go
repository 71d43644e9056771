package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LogLevel is a log entry level. Levels are totally ordered:
// DEBUG < INFO < WARN < ERROR.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

var levelRanks = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLogLevel normalises a level token. Matching is case-insensitive.
func ParseLogLevel(value string) (LogLevel, error) {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := levelRanks[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", value)
	}
	return level, nil
}

// Rank returns the position of the level in the total order, or -1 when unknown.
func (l LogLevel) Rank() int {
	rank, ok := levelRanks[l]
	if !ok {
		return -1
	}
	return rank
}

// MetricPoint represents a single metric sample.
type MetricPoint struct {
	Service    string    `json:"service"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogEntry is a single structured log line.
type LogEntry struct {
	Service   string         `json:"service"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Field resolves a top-level field by name, falling back to metadata.
// Empty top-level values fall through to metadata as well.
func (l LogEntry) Field(name string) (string, bool) {
	var top string
	switch name {
	case "service":
		top = l.Service
	case "level":
		top = string(l.Level)
	case "message":
		top = l.Message
	case "timestamp":
		if !l.Timestamp.IsZero() {
			top = l.Timestamp.UTC().Format(time.RFC3339)
		}
	}
	if top != "" {
		return top, true
	}
	value, ok := l.Metadata[name]
	if !ok || value == nil {
		return "", false
	}
	return fmt.Sprint(value), true
}

// ChangeKind enumerates deployment and configuration change categories.
type ChangeKind string

const (
	ChangeDeploy   ChangeKind = "deploy"
	ChangeConfig   ChangeKind = "config"
	ChangeRollback ChangeKind = "rollback"
)

// ChangeEvent records a deployment, configuration change or rollback.
type ChangeEvent struct {
	ChangeID    string         `json:"change_id,omitempty"`
	Service     string         `json:"service"`
	Kind        ChangeKind     `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version,omitempty"`
	Author      string         `json:"author,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// UnmarshalJSON accepts "type", "change_type" or "kind" for the change category.
func (c *ChangeEvent) UnmarshalJSON(data []byte) error {
	type plain ChangeEvent
	var aux struct {
		plain
		ChangeType string `json:"change_type"`
		KindAlias  string `json:"kind"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = ChangeEvent(aux.plain)
	if c.Kind == "" {
		switch {
		case aux.ChangeType != "":
			c.Kind = ChangeKind(aux.ChangeType)
		case aux.KindAlias != "":
			c.Kind = ChangeKind(aux.KindAlias)
		}
	}
	return nil
}

// ServiceNode holds the adjacency of one service in the dependency graph.
type ServiceNode struct {
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

// Topology maps service name to its adjacency. The graph may contain cycles.
type Topology map[string]ServiceNode
