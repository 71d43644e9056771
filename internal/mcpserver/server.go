// Package mcpserver exposes the evidence toolkit to MCP clients.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/services"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Version is reported to MCP clients.
var Version = "dev"

// InvestigateToolName runs a full investigation for a dataset alert.
const InvestigateToolName = "investigate_alert"

// Service is the subset of the investigator facade exposed over MCP.
type Service interface {
	ListTools() []models.ToolDefinition
	InvokeTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	InvestigateByID(ctx context.Context, alertID string) (*services.Outcome, error)
}

// Server wraps the MCP server and its HTTP transports.
type Server struct {
	server  *mcp.Server
	service Service
	logger  *slog.Logger
}

// New registers every toolkit tool plus the investigate tool.
func New(service Service, logger *slog.Logger) *Server {
	s := &Server{
		server:  mcp.NewServer(&mcp.Implementation{Name: "mirador-investigator", Version: Version}, nil),
		service: service,
		logger:  utils.OrDefault(logger).With(slog.String("component", "mcp")),
	}
	for _, def := range service.ListTools() {
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def.Parameters),
		}, s.toolHandler(def.Name))
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        InvestigateToolName,
		Description: "Investigate a dataset alert end to end and return the RCA record.",
	}, s.handleInvestigate)
	return s
}

// MCP returns the underlying server, for in-process transports.
func (s *Server) MCP() *mcp.Server { return s.server }

// Handler serves the streamable HTTP transport at /mcp and SSE at /sse.
func (s *Server) Handler() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return s.server }
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))
	mux.Handle("/sse", mcp.NewSSEHandler(getServer, nil))
	return mux
}

func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(fmt.Errorf("decode arguments: %w", err)), nil
			}
		}
		out, err := s.service.InvokeTool(ctx, name, args)
		if err != nil {
			s.logger.Debug("mcp tool failed", slog.String("tool", name), slog.Any("error", err))
			return errorResult(err), nil
		}
		return textResult(string(out)), nil
	}
}

type investigateInput struct {
	AlertID string `json:"alert_id" jsonschema:"id of the alert to investigate"`
}

func (s *Server) handleInvestigate(ctx context.Context, _ *mcp.CallToolRequest, input investigateInput) (*mcp.CallToolResult, any, error) {
	if input.AlertID == "" {
		return errorResult(fmt.Errorf("alert_id is required")), nil, nil
	}
	out, err := s.service.InvestigateByID(ctx, input.AlertID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	data, err := json.Marshal(out.Record)
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(data)), nil, nil
}

func inputSchema(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object"}
	}
	schema := maps.Clone(params)
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(err error) *mcp.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}
