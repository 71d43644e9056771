package agents

import (
	"context"
	"sync"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
)

// ScriptedRole answers each turn with the next scripted message and keeps
// repeating the last one once the script runs out.
type ScriptedRole struct {
	mu     sync.Mutex
	name   string
	script []models.Message
	next   int
	phases []engine.State
}

// NewScriptedRole scripts a role with fixed messages.
func NewScriptedRole(name string, script ...models.Message) *ScriptedRole {
	return &ScriptedRole{name: name, script: script}
}

// NewScriptedTextRole scripts a role with plain text replies.
func NewScriptedTextRole(name string, replies ...string) *ScriptedRole {
	script := make([]models.Message, 0, len(replies))
	for _, reply := range replies {
		script = append(script, models.TextMessage(name, reply))
	}
	return NewScriptedRole(name, script...)
}

func (r *ScriptedRole) Name() string { return r.name }

func (r *ScriptedRole) Act(_ context.Context, turn engine.Turn) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, turn.Phase)
	if len(r.script) == 0 {
		return models.TextMessage(r.name, ""), nil
	}
	idx := r.next
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	} else {
		r.next++
	}
	msg := r.script[idx]
	msg.Source = r.name
	return msg, nil
}

// Phases lists the phase of every turn the role has taken.
func (r *ScriptedRole) Phases() []engine.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.State, len(r.phases))
	copy(out, r.phases)
	return out
}
