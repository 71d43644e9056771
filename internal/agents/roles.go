// Package agents provides the planner, investigator and reflector
// capabilities that drive an investigation: deterministic heuristics, an
// OpenAI-compatible model, or a recorded transcript.
package agents

import (
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-investigator/internal/config"
	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/provider"
)

// Role backends.
const (
	BackendHeuristic = "heuristic"
	BackendOpenAI    = "openai"
	BackendReplay    = "replay"
)

// Build constructs roles for the configured backend. The pipeline backs the
// heuristic reflector only.
func Build(cfg *config.Config, pipeline *engine.Pipeline, logger *slog.Logger) (engine.Roles, error) {
	switch cfg.Roles.Backend {
	case BackendHeuristic, "":
		return NewHeuristicRoles(pipeline, logger), nil
	case BackendOpenAI:
		p, err := provider.New(cfg.Provider)
		if err != nil {
			return engine.Roles{}, err
		}
		return NewLLMRoles(p, cfg.Provider.Model, cfg.Provider.MaxTokens), nil
	case BackendReplay:
		return LoadReplay(cfg.Roles.ReplayPath)
	default:
		return engine.Roles{}, fmt.Errorf("unknown role backend %q", cfg.Roles.Backend)
	}
}
