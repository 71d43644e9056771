package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/services"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Service is the subset of the investigator facade exposed over gRPC.
type Service interface {
	Investigate(ctx context.Context, alert models.Alert) (*services.Outcome, error)
	InvestigateByID(ctx context.Context, alertID string) (*services.Outcome, error)
	ListTools() []models.ToolDefinition
	InvokeTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	Patterns(ctx context.Context, service string) ([]models.FailurePattern, error)
}

// Handler implements InvestigatorServer.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler constructs the gRPC handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: utils.OrDefault(logger)}
}

type investigateRequest struct {
	AlertID           string        `json:"alert_id"`
	Alert             *models.Alert `json:"alert"`
	IncludeTranscript bool          `json:"include_transcript"`
}

type invokeToolRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type patternsRequest struct {
	Service string `json:"service"`
}

// Investigate runs one investigation for an inline alert or a dataset alert id.
func (h *Handler) Investigate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req investigateRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	var (
		out *services.Outcome
		err error
	)
	switch {
	case req.Alert != nil:
		out, err = h.service.Investigate(ctx, *req.Alert)
	case req.AlertID != "":
		out, err = h.service.InvestigateByID(ctx, req.AlertID)
	default:
		return nil, status.Error(codes.InvalidArgument, "alert or alert_id is required")
	}
	if err != nil {
		h.logger.Warn("investigate failed", slog.String("alert_id", req.AlertID), slog.Any("error", err))
		return nil, toStatus(err)
	}
	if !req.IncludeTranscript {
		trimmed := *out.Result
		trimmed.Transcript = nil
		out = &services.Outcome{Result: &trimmed, ArtifactPath: out.ArtifactPath}
	}
	return encodeStruct(out)
}

// InvokeTool runs a single registered tool.
func (h *Handler) InvokeTool(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req invokeToolRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	raw, err := h.service.InvokeTool(ctx, req.Name, req.Args)
	if err != nil {
		return nil, toStatus(err)
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, status.Errorf(codes.Internal, "decode %s result: %v", req.Name, err)
	}
	return encodeStruct(map[string]any{"tool": req.Name, "result": result})
}

// ListTools returns the registered tool definitions.
func (h *Handler) ListTools(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	defs := h.service.ListTools()
	if defs == nil {
		defs = []models.ToolDefinition{}
	}
	return encodeStruct(map[string]any{"tools": defs})
}

// GetPatterns returns mined failure patterns.
func (h *Handler) GetPatterns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req patternsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	patterns, err := h.service.Patterns(ctx, req.Service)
	if err != nil {
		return nil, toStatus(err)
	}
	if patterns == nil {
		patterns = []models.FailurePattern{}
	}
	return encodeStruct(map[string]any{"patterns": patterns})
}

func decodeStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "decode response: %v", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, services.ErrAlertNotFound), errors.Is(err, tools.ErrUnknownTool):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidAlert),
		errors.Is(err, tools.ErrInvalidArguments),
		errors.Is(err, toolkit.ErrInvalidArgument),
		errors.Is(err, toolkit.ErrInvalidEnum):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, services.ErrNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, tools.ErrToolTimeout), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
}
