package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/miradorstack/mirador-investigator/internal/agents"
	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/services"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

func connectClient(t *testing.T) *mcp.ClientSession {
	t.Helper()
	snap, err := store.LoadDir("../store/testdata/incident")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	reg := tools.NewRegistry()
	if err := tools.RegisterEvidenceTools(reg, toolkit.New(snap)); err != nil {
		t.Fatalf("register tools: %v", err)
	}
	orch, err := engine.NewOrchestrator(agents.NewHeuristicRoles(engine.NewPipeline(nil, nil, nil, nil), nil), reg, nil, engine.Options{}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	svc, err := services.NewInvestigator(services.Deps{Runner: orch, Snapshot: snap, Tools: reg})
	if err != nil {
		t.Fatalf("investigator: %v", err)
	}

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := New(svc, nil).MCP().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("empty tool result: %#v", result)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}

func TestListsToolkitTools(t *testing.T) {
	session := connectClient(t)
	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{tools.ToolSearchLogs, tools.ToolExpandTopology, InvestigateToolName} {
		if !names[want] {
			t.Fatalf("tool %s not listed: %v", want, names)
		}
	}
}

func TestCallToolkitTool(t *testing.T) {
	session := connectClient(t)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      tools.ToolExpandTopology,
		Arguments: map[string]any{"service": "payment-api", "direction": "upstream", "depth": 1},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool failed: %s", resultText(t, result))
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	result, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      tools.ToolExpandTopology,
		Arguments: map[string]any{"service": "payment-api", "direction": "sideways"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for invalid direction")
	}
}

func TestInvestigateTool(t *testing.T) {
	session := connectClient(t)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      InvestigateToolName,
		Arguments: map[string]any{"alert_id": "a1"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("investigate failed: %s", resultText(t, result))
	}
	var record models.RCARecord
	if err := json.Unmarshal([]byte(resultText(t, result)), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.IncidentID != "rca-20240101-a1" {
		t.Fatalf("incident id = %q", record.IncidentID)
	}
}
