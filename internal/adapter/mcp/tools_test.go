package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
	"github.com/parallaxdb/parallax/internal/core/service"
)

// --- mock connector stack ---

type mockSession struct {
	sqls []string
	plan string
}

func (m *mockSession) Execute(_ context.Context, sql string) ([]map[string]any, error) {
	m.sqls = append(m.sqls, sql)
	if strings.Contains(sql, "COUNT(*) FROM tmp_") {
		return []map[string]any{{"count": int64(2)}}, nil
	}
	return nil, nil
}

func (m *mockSession) Explain(_ context.Context, _ string) (string, error) {
	return m.plan, nil
}

func (m *mockSession) Close(_ context.Context) error { return nil }

type mockConnector struct {
	dialect domain.Dialect
	session *mockSession
	pingErr error
}

func (m *mockConnector) Dialect() domain.Dialect { return m.dialect }

func (m *mockConnector) AcquireSession(_ context.Context) (port.Session, error) {
	return m.session, nil
}

func (m *mockConnector) Ping(_ context.Context) error { return m.pingErr }
func (m *mockConnector) Close()                       {}

type mockRegistry struct {
	conns   map[string]port.Connector
	entries []service.DatabaseEntry
}

func (m *mockRegistry) Get(name string) (port.Connector, error) {
	conn, ok := m.conns[name]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", name)
	}
	return conn, nil
}

func (m *mockRegistry) List() []service.DatabaseEntry { return m.entries }

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

const acceptablePlan = `{"Total Cost": 100.0, "Plan Rows": 10}`

func setupServer(reg service.ConnectorRegistry) *server.MCPServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := service.NewPipeline(reg, nil, logger, nil, nil, false, 0)

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, pipeline)
	return s
}

func twoPostgresRegistry() (*mockRegistry, *mockSession) {
	src := &mockSession{plan: acceptablePlan}
	tgt := &mockSession{plan: acceptablePlan}
	return &mockRegistry{
		conns: map[string]port.Connector{
			"prod":    &mockConnector{dialect: domain.DialectPostgreSQL, session: src},
			"replica": &mockConnector{dialect: domain.DialectPostgreSQL, session: tgt},
		},
		entries: []service.DatabaseEntry{
			{Name: "prod", Dialect: domain.DialectPostgreSQL, Host: "db1"},
			{Name: "replica", Dialect: domain.DialectPostgreSQL, Host: "db2"},
		},
	}, src
}

// --- tests ---

func TestListDatabases(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "list_databases", nil)
	require.False(t, result.IsError)

	var statuses []service.DatabaseStatus
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "prod", statuses[0].Name)
	assert.True(t, statuses[0].Available)
}

func TestValidateQuery_Safe(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "validate_query", map[string]any{"query": "SELECT 1;"})
	require.False(t, result.IsError)

	var vr domain.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &vr))
	assert.True(t, vr.IsSafe)
	assert.Equal(t, "SELECT 1", vr.SanitizedQuery)
}

func TestValidateQuery_Unsafe(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "validate_query", map[string]any{"query": "DROP TABLE users"})
	require.False(t, result.IsError)

	var vr domain.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &vr))
	assert.False(t, vr.IsSafe)
	assert.NotEmpty(t, vr.Violations)
}

func TestValidateQuery_MissingArg(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "validate_query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "query is required")
}

func TestAnalyzeQueryCost(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "analyze_query_cost", map[string]any{
		"database": "prod",
		"query":    "SELECT id FROM orders",
	})
	require.False(t, result.IsError)

	var analysis domain.PlanAnalysis
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &analysis))
	assert.True(t, analysis.IsAcceptable)
	assert.Equal(t, domain.CostLow, analysis.CostLevel)
}

func TestAnalyzeQueryCost_UnknownDatabase(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "analyze_query_cost", map[string]any{
		"database": "nope",
		"query":    "SELECT 1",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unknown database")
}

func TestCompareQueries_HappyPath(t *testing.T) {
	reg, src := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "compare_queries", map[string]any{
		"source_database": "prod",
		"target_database": "replica",
		"source_query":    "SELECT id, amount FROM orders",
		"target_query":    "SELECT id, amount FROM orders_replica",
		"key_columns":     []any{"id"},
		"session_id":      "nightly-42",
	})
	require.False(t, result.IsError, toolText(result))

	var report service.CompareReport
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &report))
	assert.Empty(t, report.BlockedBy)
	require.NotNil(t, report.Comparison)
	assert.Equal(t, domain.MatchIdentical, report.Comparison.MatchStatus)
	assert.NotEmpty(t, src.sqls)
}

func TestCompareQueries_BlockedByValidation(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "compare_queries", map[string]any{
		"source_database": "prod",
		"target_database": "replica",
		"source_query":    "DELETE FROM orders",
		"target_query":    "SELECT id FROM orders_replica",
		"key_columns":     []any{"id"},
	})
	require.False(t, result.IsError)

	var report service.CompareReport
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &report))
	assert.Equal(t, service.BlockedByValidation, report.BlockedBy)
	assert.Nil(t, report.Comparison)
}

func TestCompareQueries_MissingKeyColumns(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "compare_queries", map[string]any{
		"source_database": "prod",
		"target_database": "replica",
		"source_query":    "SELECT 1",
		"target_query":    "SELECT 1",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "key_columns is required")
}

func TestComparisonSafetyInfo(t *testing.T) {
	reg, _ := twoPostgresRegistry()
	s := setupServer(reg)

	result := callTool(t, s, "comparison_safety_info", nil)
	require.False(t, result.IsError)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &info))
	assert.Contains(t, info, "stages")
	assert.Contains(t, info, "validation")

	plan, ok := info["plan_analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(300), plan["max_estimated_time_sec"])
}
