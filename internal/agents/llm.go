package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/provider"
)

// Role names shared by every backend.
const (
	PlannerName      = "planner"
	InvestigatorName = "investigator"
	ReflectorName    = "reflector"
)

const foreignResultLimit = 2000

// LLMRole generates role output with a chat completion provider.
type LLMRole struct {
	name      string
	provider  provider.Provider
	prompt    func(*engine.Session) string
	model     string
	maxTokens int
}

// NewLLMRole binds a provider to a role name and system prompt.
func NewLLMRole(name string, p provider.Provider, prompt func(*engine.Session) string, model string, maxTokens int) *LLMRole {
	return &LLMRole{name: name, provider: p, prompt: prompt, model: model, maxTokens: maxTokens}
}

// NewLLMRoles builds the three roles over one provider.
func NewLLMRoles(p provider.Provider, model string, maxTokens int) engine.Roles {
	static := func(text string) func(*engine.Session) string {
		return func(*engine.Session) string { return text }
	}
	return engine.Roles{
		Planner:      NewLLMRole(PlannerName, p, static(PlannerPrompt), model, maxTokens),
		Investigator: NewLLMRole(InvestigatorName, p, InvestigatorPrompt, model, maxTokens),
		Reflector:    NewLLMRole(ReflectorName, p, static(ReflectorPrompt), model, maxTokens),
	}
}

func (r *LLMRole) Name() string { return r.name }

// Act sends the transcript from this role's point of view. Tools are offered
// only when the turn carries definitions.
func (r *LLMRole) Act(ctx context.Context, turn engine.Turn) (models.Message, error) {
	req := &provider.CompletionRequest{
		SystemPrompt: r.prompt(turn.Session),
		Messages:     chatHistory(r.name, turn.Transcript),
		Tools:        turn.Tools,
		Model:        r.model,
		MaxTokens:    r.maxTokens,
	}
	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return models.Message{}, fmt.Errorf("%s completion: %w", r.name, err)
	}
	if resp.HasToolCalls() {
		msg := models.ToolCallMessage(r.name, resp.ToolCalls...)
		msg.Content = resp.Content
		return msg, nil
	}
	return models.TextMessage(r.name, resp.Content), nil
}

// chatHistory renders a transcript for one role. The role's own messages and
// tool results stay structured; other participants appear as user turns.
func chatHistory(self string, transcript []models.Message) []provider.Message {
	out := make([]provider.Message, 0, len(transcript))
	for _, msg := range transcript {
		if msg.Source == self {
			switch msg.Kind {
			case models.MessageToolCalls:
				out = append(out, provider.Message{Role: provider.RoleAssistant, Content: msg.Content, ToolCalls: msg.ToolCalls})
			case models.MessageToolResults:
				out = append(out, provider.Message{Role: provider.RoleTool, ToolResults: msg.ToolResults})
			default:
				out = append(out, provider.Message{Role: provider.RoleAssistant, Content: msg.Content})
			}
			continue
		}
		out = append(out, provider.Message{Role: provider.RoleUser, Content: render(msg)})
	}
	return out
}

func render(msg models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]: ", msg.Source)
	switch msg.Kind {
	case models.MessageToolCalls:
		b.WriteString("called ")
		for i, call := range msg.ToolCalls {
			if i > 0 {
				b.WriteString(", ")
			}
			args, _ := json.Marshal(call.Args)
			fmt.Fprintf(&b, "%s(%s)", call.Name, args)
		}
	case models.MessageToolResults:
		b.WriteString("tool results")
		for _, res := range msg.ToolResults {
			content := res.Content
			if len(content) > foreignResultLimit {
				content = content[:foreignResultLimit] + "..."
			}
			fmt.Fprintf(&b, "\n%s: %s", res.Name, content)
		}
	default:
		b.WriteString(msg.Content)
	}
	return b.String()
}
