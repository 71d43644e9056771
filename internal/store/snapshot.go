// Package store holds the immutable telemetry snapshot investigations read from.
package store

import (
	"slices"
	"sort"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// Dataset is the raw material a Snapshot is built from.
type Dataset struct {
	Alerts   []models.Alert
	Metrics  []models.MetricPoint
	Logs     []models.LogEntry
	Changes  []models.ChangeEvent
	Topology models.Topology
}

// Snapshot is a read-only view over a loaded dataset. All accessors return
// copies of the top-level collections so concurrent sessions can share it.
type Snapshot struct {
	alerts   []models.Alert
	metrics  []models.MetricPoint
	logs     []models.LogEntry
	changes  []models.ChangeEvent
	topology models.Topology
	services []string
	alertIdx map[string]int
}

// NewSnapshot freezes ds. The dataset slices are copied.
func NewSnapshot(ds Dataset) *Snapshot {
	s := &Snapshot{
		alerts:   slices.Clone(ds.Alerts),
		metrics:  slices.Clone(ds.Metrics),
		logs:     slices.Clone(ds.Logs),
		changes:  slices.Clone(ds.Changes),
		topology: make(models.Topology, len(ds.Topology)),
		alertIdx: make(map[string]int, len(ds.Alerts)),
	}
	for name, node := range ds.Topology {
		s.topology[name] = models.ServiceNode{
			Dependencies: slices.Clone(node.Dependencies),
			Dependents:   slices.Clone(node.Dependents),
		}
		s.services = append(s.services, name)
	}
	sort.Strings(s.services)
	for i, alert := range s.alerts {
		if _, seen := s.alertIdx[alert.AlertID]; !seen {
			s.alertIdx[alert.AlertID] = i
		}
	}
	return s
}

// Alerts returns every alert in dataset order.
func (s *Snapshot) Alerts() []models.Alert { return slices.Clone(s.alerts) }

// Metrics returns every metric point in dataset order.
func (s *Snapshot) Metrics() []models.MetricPoint { return slices.Clone(s.metrics) }

// Logs returns every log entry in dataset order.
func (s *Snapshot) Logs() []models.LogEntry { return slices.Clone(s.logs) }

// Changes returns every change event in dataset order.
func (s *Snapshot) Changes() []models.ChangeEvent { return slices.Clone(s.changes) }

// Alert looks up an alert by id.
func (s *Snapshot) Alert(id string) (models.Alert, bool) {
	idx, ok := s.alertIdx[id]
	if !ok {
		return models.Alert{}, false
	}
	return s.alerts[idx], true
}

// Service returns the adjacency of a service in the topology.
func (s *Snapshot) Service(name string) (models.ServiceNode, bool) {
	node, ok := s.topology[name]
	if !ok {
		return models.ServiceNode{}, false
	}
	return models.ServiceNode{
		Dependencies: slices.Clone(node.Dependencies),
		Dependents:   slices.Clone(node.Dependents),
	}, true
}

// Services lists the topology's service names in sorted order.
func (s *Snapshot) Services() []string { return slices.Clone(s.services) }

// Stats summarises collection sizes for logging.
func (s *Snapshot) Stats() map[string]int {
	return map[string]int{
		"alerts":   len(s.alerts),
		"metrics":  len(s.metrics),
		"logs":     len(s.logs),
		"changes":  len(s.changes),
		"services": len(s.topology),
	}
}
