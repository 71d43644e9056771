package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
)

// ErrReplayExhausted is returned when a replayed role has no messages left.
var ErrReplayExhausted = errors.New("replay exhausted")

// ReplayRole returns recorded messages in order. Tool results are never
// replayed; the orchestrator executes the recorded calls again.
type ReplayRole struct {
	mu       sync.Mutex
	name     string
	messages []models.Message
	next     int
}

// NewReplayRole replays messages for one role.
func NewReplayRole(name string, messages ...models.Message) *ReplayRole {
	return &ReplayRole{name: name, messages: messages}
}

func (r *ReplayRole) Name() string { return r.name }

func (r *ReplayRole) Act(context.Context, engine.Turn) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.messages) {
		return models.Message{}, fmt.Errorf("%w: %s after %d messages", ErrReplayExhausted, r.name, len(r.messages))
	}
	msg := r.messages[r.next]
	r.next++
	msg.Source = r.name
	msg.CreatedAt = time.Time{}
	return msg, nil
}

// Remaining reports how many recorded messages have not been replayed.
func (r *ReplayRole) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages) - r.next
}

// LoadReplay reads a recorded transcript and splits it into roles. The file
// holds either a bare message array or a saved investigation result.
func LoadReplay(path string) (engine.Roles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Roles{}, fmt.Errorf("read replay: %w", err)
	}
	transcript, err := decodeTranscript(data)
	if err != nil {
		return engine.Roles{}, fmt.Errorf("decode replay %s: %w", path, err)
	}
	return ReplayRoles(transcript)
}

// ReplayRoles splits a transcript by source into replaying roles.
func ReplayRoles(transcript []models.Message) (engine.Roles, error) {
	bySource := map[string][]models.Message{}
	for _, msg := range transcript {
		if msg.Kind == models.MessageToolResults {
			continue
		}
		bySource[msg.Source] = append(bySource[msg.Source], msg)
	}
	for _, name := range []string{PlannerName, InvestigatorName, ReflectorName} {
		if len(bySource[name]) == 0 {
			return engine.Roles{}, fmt.Errorf("replay has no %s messages", name)
		}
	}
	return engine.Roles{
		Planner:      NewReplayRole(PlannerName, bySource[PlannerName]...),
		Investigator: NewReplayRole(InvestigatorName, bySource[InvestigatorName]...),
		Reflector:    NewReplayRole(ReflectorName, bySource[ReflectorName]...),
	}, nil
}

func decodeTranscript(data []byte) ([]models.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var transcript []models.Message
		if err := json.Unmarshal(data, &transcript); err != nil {
			return nil, err
		}
		return transcript, nil
	}
	var saved struct {
		Transcript []models.Message `json:"transcript"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, err
	}
	return saved.Transcript, nil
}
