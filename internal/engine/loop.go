package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/extract"
	"github.com/miradorstack/mirador-investigator/internal/metrics"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/telemetry"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

var (
	// ErrCapabilityTimeout is returned when a role does not answer within the turn timeout.
	ErrCapabilityTimeout = errors.New("role capability timed out")
	// ErrCapabilityFailure is returned when a role fails to produce a message.
	ErrCapabilityFailure = errors.New("role capability failed")
)

// State is a phase of the orchestration state machine.
type State string

const (
	StatePlanning      State = "PLANNING"
	StateInvestigating State = "INVESTIGATING"
	StateReflecting    State = "REFLECTING"
	StateTerminated    State = "TERMINATED"
	StateRetry         State = "RETRY"
)

// SeedSource is the transcript source of the task message.
const SeedSource = "user"

// Default loop bounds.
const (
	DefaultTurnTimeout   = 60 * time.Second
	DefaultMaxToolRounds = 4
)

// Role produces the next message for its phase. A message is either text or
// a batch of tool calls.
type Role interface {
	Name() string
	Act(ctx context.Context, turn Turn) (models.Message, error)
}

// Turn is the context handed to a role.
type Turn struct {
	Phase      State
	Session    *Session
	Transcript []models.Message
	// Tools is populated for the investigating phase only.
	Tools []models.ToolDefinition
	// Round counts tool-call rounds already completed in this turn.
	Round int
}

// ToolExecutor runs tool calls issued by roles.
type ToolExecutor interface {
	Definitions() []models.ToolDefinition
	Execute(ctx context.Context, call models.ToolCall) models.ToolResult
}

// Roles bundles the three round-robin participants.
type Roles struct {
	Planner      Role
	Investigator Role
	Reflector    Role
}

// Options bound an orchestrator run.
type Options struct {
	Session       SessionOptions
	MaxMessages   int
	TurnTimeout   time.Duration
	RoleRetries   int
	MaxToolRounds int
	// Deadline bounds the whole session. Zero disables it.
	Deadline time.Duration
	// Termination replaces the default marker/ceiling condition.
	Termination Condition
}

// Result is the outcome of one investigation.
type Result struct {
	SessionID   string                `json:"session_id"`
	Alert       models.Alert          `json:"alert"`
	Window      models.TimeRange      `json:"window"`
	Record      models.RCARecord      `json:"rca"`
	Extracted   bool                  `json:"extracted"`
	Reason      Reason                `json:"termination_reason"`
	Iterations  int                   `json:"iterations"`
	Transcript  []models.Message      `json:"transcript"`
	Evidence    []models.EvidenceItem `json:"evidence"`
	Hypotheses  []models.Hypothesis   `json:"hypotheses"`
	ToolsCalled []string              `json:"tools_called"`
	Duration    time.Duration         `json:"duration"`
}

type phaseRole struct {
	state State
	role  Role
}

// Orchestrator drives Planner, Investigator and Reflector turns in order
// until a termination condition fires, then extracts the RCA record.
type Orchestrator struct {
	roles       []phaseRole
	tools       ToolExecutor
	extractor   extract.Extractor
	termination Condition
	opts        Options
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrchestrator validates the roles and applies option defaults.
func NewOrchestrator(roles Roles, tools ToolExecutor, extractor extract.Extractor, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if roles.Planner == nil || roles.Investigator == nil || roles.Reflector == nil {
		return nil, fmt.Errorf("orchestrator requires planner, investigator and reflector roles")
	}
	if extractor == nil {
		extractor = extract.NewJSONExtractor()
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.RoleRetries < 0 {
		opts.RoleRetries = 0
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	termination := opts.Termination
	if termination == nil {
		termination = DefaultTermination(opts.MaxMessages)
	} else {
		termination = AnyOf(termination, MaxMessages{Limit: opts.MaxMessages})
	}
	return &Orchestrator{
		roles: []phaseRole{
			{state: StatePlanning, role: roles.Planner},
			{state: StateInvestigating, role: roles.Investigator},
			{state: StateReflecting, role: roles.Reflector},
		},
		tools:       tools,
		extractor:   extractor,
		termination: termination,
		opts:        opts,
		logger:      utils.OrDefault(logger),
		now:         time.Now,
	}, nil
}

// Run investigates one alert. An error is returned only when no session can
// be constructed; every other outcome yields a record.
func (o *Orchestrator) Run(ctx context.Context, alert models.Alert) (*Result, error) {
	started := o.now()
	session, err := NewSession(alert, o.opts.Session)
	if err != nil {
		metrics.ObserveSession(o.now().Sub(started), metrics.OutcomeError)
		return nil, utils.NewAppError("engine.Run", "construct session", err)
	}
	session.now = o.now

	if o.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Deadline)
		defer cancel()
	}
	ctx, span := telemetry.StartSessionSpan(ctx, session.ID, alert.AlertID, alert.Service)

	logger := o.logger.With(
		slog.String("session_id", session.ID),
		slog.String("alert_id", alert.AlertID),
		slog.String("service", alert.Service),
	)
	logger.Info("investigation started",
		slog.String("window_start", utils.FormatTimestamp(session.Window.Start)),
		slog.String("window_end", utils.FormatTimestamp(session.Window.End)),
	)

	transcript := []models.Message{o.stamp(models.TextMessage(SeedSource, TaskPrompt(session)))}
	reason, transcript := o.converse(ctx, logger, session, transcript)
	metrics.ObserveTermination(string(reason))
	logger.Info("investigation terminated",
		slog.String("reason", string(reason)),
		slog.Int("iterations", session.Iteration),
		slog.Int("messages", len(transcript)),
	)

	var (
		record    models.RCARecord
		extracted bool
	)
	if reason == ReasonDeadline {
		record = extract.Fallback(alert, o.now())
	} else {
		record, extracted = o.extractor.Extract(transcript, alert)
	}
	if extracted {
		for _, h := range record.Hypotheses() {
			session.AddHypothesis(h.Statement, h.Confidence, h.Category)
		}
	}
	if reason == ReasonNeedMoreData {
		note := "More data requested"
		if detail := RequestedData(lastText(transcript)); detail != "" {
			note += ": " + detail
		}
		record.AddMissingData(note)
	}

	outcome := metrics.OutcomeFallback
	if extracted {
		outcome = metrics.OutcomeExtracted
	}
	duration := o.now().Sub(started)
	metrics.ObserveSession(duration, outcome)
	telemetry.EndSessionSpan(span, string(reason), session.Iteration, extracted)
	logger.Info("investigation finished",
		slog.String("outcome", outcome),
		slog.Float64("confidence", record.MostLikelyRootCause.Confidence),
		slog.String("category", record.MostLikelyRootCause.Category),
		slog.Duration("duration", duration),
	)

	return &Result{
		SessionID:   session.ID,
		Alert:       alert,
		Window:      session.Window,
		Record:      record,
		Extracted:   extracted,
		Reason:      reason,
		Iterations:  session.Iteration,
		Transcript:  transcript,
		Evidence:    session.EvidenceSnapshot(),
		Hypotheses:  slices.Clone(session.Hypotheses),
		ToolsCalled: slices.Clone(session.ToolsCalled),
		Duration:    duration,
	}, nil
}

// converse runs round-robin turns until a condition fires. A request for
// more data restarts at the planner while iterations remain.
func (o *Orchestrator) converse(ctx context.Context, logger *slog.Logger, session *Session, transcript []models.Message) (Reason, []models.Message) {
	if reason, stop := o.termination.Check(transcript); stop {
		return reason, transcript
	}
	for {
	round:
		for _, pr := range o.roles {
			if ctx.Err() != nil {
				return ReasonDeadline, transcript
			}
			var (
				reason Reason
				stop   bool
			)
			reason, stop, transcript = o.turn(ctx, logger, session, pr, transcript)
			if !stop {
				continue
			}
			if reason == ReasonNeedMoreData && session.RequestRetry() {
				logger.Info("more data requested, restarting investigation",
					slog.String("state", string(StateRetry)),
					slog.Int("iteration", session.Iteration),
				)
				break round
			}
			return reason, transcript
		}
	}
}

// turn lets one role act, executing tool-call rounds until it produces text
// or the round cap is reached.
func (o *Orchestrator) turn(ctx context.Context, logger *slog.Logger, session *Session, pr phaseRole, transcript []models.Message) (Reason, bool, []models.Message) {
	name := pr.role.Name()
	for round := 0; ; round++ {
		in := Turn{
			Phase:      pr.state,
			Session:    session,
			Transcript: slices.Clone(transcript),
			Round:      round,
		}
		if pr.state == StateInvestigating && o.tools != nil {
			in.Tools = o.tools.Definitions()
		}

		msg, err := o.act(ctx, logger, session, pr, in)
		if err != nil {
			if ctx.Err() != nil {
				return ReasonDeadline, true, transcript
			}
			logger.Error("role exhausted retries", slog.String("role", name), slog.Any("error", err))
			return ReasonCapabilityExhausted, true, transcript
		}
		if msg.Source == "" {
			msg.Source = name
		}
		if msg.Kind == "" {
			msg.Kind = models.MessageText
		}
		if msg.Kind == models.MessageToolCalls && len(msg.ToolCalls) == 0 {
			msg.Kind = models.MessageText
		}
		logger.Debug("role turn",
			slog.String("role", name),
			slog.String("phase", string(pr.state)),
			slog.String("kind", string(msg.Kind)),
			slog.Int("messages", len(transcript)+1),
		)

		if msg.Kind != models.MessageToolCalls {
			o.absorb(session, name, msg.Content)
			transcript = append(transcript, o.stamp(msg))
			reason, stop := o.termination.Check(transcript)
			return reason, stop, transcript
		}

		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].ID == "" {
				msg.ToolCalls[i].ID = fmt.Sprintf("call-%d-%d", len(transcript), i)
			}
		}
		transcript = append(transcript, o.stamp(msg))
		if reason, stop := o.termination.Check(transcript); stop {
			return reason, true, transcript
		}
		results := o.executeTools(ctx, logger, session, msg.ToolCalls)
		transcript = append(transcript, o.stamp(models.Message{
			Source:      name,
			Kind:        models.MessageToolResults,
			ToolResults: results,
		}))
		if reason, stop := o.termination.Check(transcript); stop {
			return reason, true, transcript
		}
		if round+1 >= o.opts.MaxToolRounds {
			logger.Warn("tool round cap reached", slog.String("role", name), slog.Int("rounds", round+1))
			return "", false, transcript
		}
	}
}

// act invokes the role under the turn timeout, retrying failures.
func (o *Orchestrator) act(ctx context.Context, logger *slog.Logger, session *Session, pr phaseRole, in Turn) (models.Message, error) {
	name := pr.role.Name()
	var lastErr error
	for attempt := 0; attempt <= o.opts.RoleRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.Message{}, err
		}
		turnCtx, cancel := context.WithTimeout(ctx, o.opts.TurnTimeout)
		turnCtx, span := telemetry.StartTurnSpan(turnCtx, name, string(pr.state), session.Iteration)
		msg, err := invoke(turnCtx, pr.role, in)
		if err != nil {
			if errors.Is(turnCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %s after %s", ErrCapabilityTimeout, name, o.opts.TurnTimeout)
			} else {
				err = fmt.Errorf("%w: %s: %v", ErrCapabilityFailure, name, err)
			}
		}
		telemetry.EndSpan(span, err)
		cancel()
		metrics.ObserveTurn(name, err)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		logger.Warn("role turn failed",
			slog.String("role", name),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return models.Message{}, lastErr
}

// invoke runs Act so that a role ignoring its context cannot outlive ctx.
func invoke(ctx context.Context, role Role, in Turn) (models.Message, error) {
	type outcome struct {
		msg models.Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := role.Act(ctx, in)
		done <- outcome{msg: msg, err: err}
	}()
	select {
	case out := <-done:
		return out.msg, out.err
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

func (o *Orchestrator) executeTools(ctx context.Context, logger *slog.Logger, session *Session, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		session.RecordTool(call.Name)
		if o.tools == nil {
			results = append(results, models.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: `{"error":"no tools available"}`,
				IsError: true,
			})
			continue
		}
		toolCtx, span := telemetry.StartToolCallSpan(ctx, call.Name)
		result := o.tools.Execute(toolCtx, call)
		var spanErr error
		if result.IsError {
			spanErr = errors.New(result.Content)
		}
		telemetry.EndSpan(span, spanErr)
		if result.CallID == "" {
			result.CallID = call.ID
		}
		if result.Name == "" {
			result.Name = call.Name
		}
		logger.Debug("tool executed",
			slog.String("tool", call.Name),
			slog.Bool("error", result.IsError),
		)
		if !result.IsError {
			session.AddEvidence(call.Name, truncate(result.Content, 280), models.RelevanceNeutral)
		}
		results = append(results, result)
	}
	return results
}

// absorb records evidence summary bullets from role text.
func (o *Orchestrator) absorb(session *Session, role, text string) {
	for _, f := range ParseEvidenceSummary(text) {
		source := f.Source
		if source == "" {
			source = role
		}
		session.AddEvidence(source, f.Text, models.RelevanceSupports)
	}
}

func (o *Orchestrator) stamp(msg models.Message) models.Message {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = o.now().UTC()
	}
	return msg
}

func lastText(transcript []models.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Kind == models.MessageText {
			return transcript[i].Content
		}
	}
	return ""
}

// TaskPrompt renders the seed message for a session.
func TaskPrompt(session *Session) string {
	a := session.Alert
	return fmt.Sprintf(`Investigate this incident:
Alert ID: %s
Service: %s
Severity: %s
Type: %s
Message: %s
Time: %s
Window: %s to %s

Planner: Create an investigation plan.
Investigator: Execute the plan using tools.
Reflector: Analyze evidence and produce RCA.`,
		a.AlertID, a.Service, a.Severity, a.AlertType, a.Message,
		utils.FormatTimestamp(a.Timestamp),
		utils.FormatTimestamp(session.Window.Start),
		utils.FormatTimestamp(session.Window.End),
	)
}
