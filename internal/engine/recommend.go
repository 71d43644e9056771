package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Action defaults applied when a rule leaves them empty.
const (
	DefaultPriority = "short-term"
	DefaultOwner    = "sre-team"
)

// RuleEngine applies rule-based recommendations to a diagnosed incident.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID           string       `yaml:"id"`
	Match        RuleMatch    `yaml:"match"`
	Actions      []RuleAction `yaml:"actions"`
	Verification []string     `yaml:"verification"`
}

// RuleAction is a recommended action template.
type RuleAction struct {
	Action   string `yaml:"action"`
	Priority string `yaml:"priority"`
	Owner    string `yaml:"owner"`
}

// RuleMatch defines optional attributes for rule matching. Empty attributes
// match anything; EvidenceContains matches when any keyword appears.
type RuleMatch struct {
	Service          string   `yaml:"service"`
	AlertType        string   `yaml:"alert_type"`
	Severity         string   `yaml:"severity"`
	Category         string   `yaml:"category"`
	EvidenceContains []string `yaml:"evidence_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// RuleInput describes the incident a rule is matched against.
type RuleInput struct {
	Alert    models.Alert
	Category string
	Services []string
	Evidence []string
}

// Recommendation is the merged output of every matching rule.
type Recommendation struct {
	RuleIDs      []string
	Actions      []models.RecommendedAction
	Verification []string
}

// NewRuleEngine loads rules from the provided path. If path is empty or the
// file does not exist, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	for i, rule := range cfg.Rules {
		if rule.Match.Severity == "" {
			continue
		}
		if _, err := models.ParseSeverity(rule.Match.Severity); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
		}
	}
	return &RuleEngine{rules: cfg.Rules, logger: utils.OrDefault(logger)}, nil
}

// Len reports the number of loaded rules.
func (e *RuleEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Recommend merges actions and verification steps of every matching rule in
// file order, dropping duplicates.
func (e *RuleEngine) Recommend(in RuleInput) Recommendation {
	var out Recommendation
	if e == nil {
		return out
	}
	seen := make(map[string]struct{})
	for _, rule := range e.rules {
		if !rule.Match.matches(in) {
			continue
		}
		out.RuleIDs = append(out.RuleIDs, rule.ID)
		for _, a := range rule.Actions {
			if a.Action == "" {
				continue
			}
			if _, ok := seen[a.Action]; ok {
				continue
			}
			seen[a.Action] = struct{}{}
			out.Actions = append(out.Actions, models.RecommendedAction{
				Action:   expand(a.Action, in),
				Priority: firstNonEmpty(a.Priority, DefaultPriority),
				Owner:    firstNonEmpty(a.Owner, DefaultOwner),
			})
		}
		out.Verification = appendUnique(out.Verification, rule.Verification...)
	}
	if len(out.RuleIDs) > 0 {
		e.logger.Debug("rules matched", slog.Any("rules", out.RuleIDs))
	}
	return out
}

func (m RuleMatch) matches(in RuleInput) bool {
	if m.Service != "" && !serviceMatches(m.Service, in) {
		return false
	}
	if m.AlertType != "" && !strings.EqualFold(m.AlertType, in.Alert.AlertType) {
		return false
	}
	if m.Severity != "" {
		floor, _ := models.ParseSeverity(m.Severity)
		if in.Alert.Severity.Rank() < floor.Rank() {
			return false
		}
	}
	if m.Category != "" && !strings.EqualFold(m.Category, in.Category) {
		return false
	}
	if len(m.EvidenceContains) > 0 && !evidenceContains(m.EvidenceContains, in.Evidence) {
		return false
	}
	return true
}

func serviceMatches(service string, in RuleInput) bool {
	if strings.EqualFold(service, in.Alert.Service) {
		return true
	}
	for _, s := range in.Services {
		if strings.EqualFold(service, s) {
			return true
		}
	}
	return false
}

func evidenceContains(keywords []string, evidence []string) bool {
	for _, item := range evidence {
		text := strings.ToLower(item)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// expand substitutes {service} and {alert_type} placeholders.
func expand(template string, in RuleInput) string {
	return strings.NewReplacer(
		"{service}", in.Alert.Service,
		"{alert_type}", in.Alert.AlertType,
	).Replace(template)
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
