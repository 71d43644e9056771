package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var recordKeys = map[string]bool{
	"incident_id":            true,
	"timestamp":              true,
	"incident_summary":       true,
	"top_hypotheses":         true,
	"most_likely_root_cause": true,
	"evidence":               true,
	"timeline":               true,
	"recommended_actions":    true,
	"verification_steps":     true,
	"missing_data":           true,
}

type plainRecord RCARecord

// ParseRecord decodes an RCA payload. Fields whose shape does not match the
// typed view are coerced where possible and otherwise left empty; the payload
// itself is kept verbatim in Raw.
func ParseRecord(data []byte) (RCARecord, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return RCARecord{}, err
	}
	if fields == nil {
		return RCARecord{}, fmt.Errorf("record is not an object")
	}
	record := looseRecord(fields)
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return RCARecord{}, err
	}
	record.Raw = compact.Bytes()
	return record, nil
}

// MarshalJSON emits the original payload when the record was parsed from one.
func (r RCARecord) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(plainRecord(r))
}

// UnmarshalJSON accepts any object. Payloads that decode cleanly into the
// typed fields and carry no other keys leave Raw empty.
func (r *RCARecord) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var strict plainRecord
	strictErr := json.Unmarshal(data, &strict)
	parsed, err := ParseRecord(data)
	if err != nil {
		return err
	}
	if strictErr == nil && !hasUnknownKeys(data) {
		*r = RCARecord(strict)
		return nil
	}
	*r = parsed
	return nil
}

// AddMissingData appends a data gap to the record and to its raw payload.
func (r *RCARecord) AddMissingData(note string) {
	r.MissingData = append(r.MissingData, note)
	if len(r.Raw) == 0 {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &fields); err != nil {
		r.Raw = nil
		return
	}
	var list []any
	if existing, ok := fields["missing_data"]; ok && !bytes.Equal(existing, []byte("null")) {
		if err := json.Unmarshal(existing, &list); err != nil {
			list = []any{json.RawMessage(existing)}
		}
	}
	list = append(list, note)
	encoded, err := json.Marshal(list)
	if err != nil {
		r.Raw = nil
		return
	}
	fields["missing_data"] = encoded
	raw, err := json.Marshal(fields)
	if err != nil {
		r.Raw = nil
		return
	}
	r.Raw = raw
}

func hasUnknownKeys(data []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return true
	}
	for key := range fields {
		if !recordKeys[key] {
			return true
		}
	}
	return false
}

func looseRecord(m map[string]any) RCARecord {
	record := RCARecord{
		IncidentID:        looseString(m["incident_id"]),
		Timestamp:         looseString(m["timestamp"]),
		IncidentSummary:   looseString(m["incident_summary"]),
		VerificationSteps: looseStrings(m["verification_steps"]),
		MissingData:       looseStrings(m["missing_data"]),
	}
	for _, h := range looseObjects(m["top_hypotheses"]) {
		record.TopHypotheses = append(record.TopHypotheses, RankedHypothesis{
			Rank:                  int(looseFloat(h["rank"])),
			Hypothesis:            looseString(h["hypothesis"]),
			Confidence:            looseFloat(h["confidence"]),
			Category:              looseString(h["category"]),
			SupportingEvidence:    looseStrings(h["supporting_evidence"]),
			ContradictingEvidence: looseStrings(h["contradicting_evidence"]),
		})
	}
	if rc, ok := m["most_likely_root_cause"].(map[string]any); ok {
		record.MostLikelyRootCause = RootCause{
			Hypothesis:       looseString(rc["hypothesis"]),
			Category:         looseString(rc["category"]),
			Confidence:       looseFloat(rc["confidence"]),
			AffectedServices: looseStrings(rc["affected_services"]),
		}
	}
	for _, e := range looseObjects(m["evidence"]) {
		record.Evidence = append(record.Evidence, EvidenceRef{
			Source:      looseString(e["source"]),
			Observation: looseString(e["observation"]),
			Relevance:   looseString(e["relevance"]),
		})
	}
	for _, e := range looseObjects(m["timeline"]) {
		record.Timeline = append(record.Timeline, TimelineEntry{Time: looseString(e["time"]), Event: looseString(e["event"])})
	}
	for _, a := range looseObjects(m["recommended_actions"]) {
		record.RecommendedActions = append(record.RecommendedActions, RecommendedAction{
			Action:   looseString(a["action"]),
			Priority: looseString(a["priority"]),
			Owner:    looseString(a["owner"]),
		})
	}
	return record
}

func looseString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func looseFloat(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func looseStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, looseString(item))
		}
		return out
	default:
		return []string{looseString(t)}
	}
}

func looseObjects(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
