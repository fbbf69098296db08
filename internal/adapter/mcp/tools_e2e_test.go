package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parallaxdb/parallax/internal/adapter/postgres"
	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
	"github.com/parallaxdb/parallax/internal/core/service"
)

const e2eSchema = `
	CREATE TABLE orders_src (
		id       INTEGER PRIMARY KEY,
		customer TEXT NOT NULL,
		amount   NUMERIC(10,2) NOT NULL
	);

	CREATE TABLE orders_tgt (
		id       INTEGER PRIMARY KEY,
		customer TEXT NOT NULL,
		amount   NUMERIC(10,2) NOT NULL
	);

	INSERT INTO orders_src (id, customer, amount) VALUES
		(1, 'alice',   10.00),
		(2, 'bob',     20.00),
		(3, 'carol',   30.00),
		(4, 'dave',    40.00),
		(5, 'erin',    50.00);

	-- id 1 missing, id 6 extra, id 3 amount changed.
	INSERT INTO orders_tgt (id, customer, amount) VALUES
		(2, 'bob',     20.00),
		(3, 'carol',   33.00),
		(4, 'dave',    40.00),
		(5, 'erin',    50.00),
		(6, 'frank',   60.00);
`

type e2eRegistry struct {
	conns   map[string]port.Connector
	entries []service.DatabaseEntry
}

func (r *e2eRegistry) Get(name string) (port.Connector, error) {
	conn, ok := r.conns[name]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", name)
	}
	return conn, nil
}

func (r *e2eRegistry) List() []service.DatabaseEntry { return r.entries }

// setupE2E starts a Postgres testcontainer, seeds two order tables with a
// known diff, and returns a fully wired MCP server backed by real adapters.
// Both configured databases point at the same container so the comparison
// genuinely runs in-database.
func setupE2E(t *testing.T) (*server.MCPServer, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, connStr, postgres.PoolSettings{MaxConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, e2eSchema)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "ANALYZE")
	require.NoError(t, err)

	reg := &e2eRegistry{
		conns: map[string]port.Connector{
			"prod":    postgres.NewConnector(pool, 30*time.Second),
			"replica": postgres.NewConnector(pool, 30*time.Second),
		},
		entries: []service.DatabaseEntry{
			{Name: "prod", Dialect: domain.DialectPostgreSQL, Host: "localhost"},
			{Name: "replica", Dialect: domain.DialectPostgreSQL, Host: "localhost"},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := service.NewPipeline(reg, nil, logger, nil, nil, false, 0)

	s := server.NewMCPServer("test-e2e", "0.0.1", server.WithToolCapabilities(true))
	RegisterTools(s, pipeline)
	return s, pool
}

func TestE2E_MCPTools(t *testing.T) {
	s, pool := setupE2E(t)

	t.Run("list_databases", func(t *testing.T) {
		result := callToolE2E(t, s, "list_databases", nil)
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var statuses []service.DatabaseStatus
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &statuses))
		require.Len(t, statuses, 2)
		for _, st := range statuses {
			assert.True(t, st.Available, "database %s should be available", st.Name)
		}
	})

	t.Run("analyze_query_cost", func(t *testing.T) {
		result := callToolE2E(t, s, "analyze_query_cost", map[string]any{
			"database": "prod",
			"query":    "SELECT id, customer, amount FROM orders_src",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var analysis domain.PlanAnalysis
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &analysis))
		assert.True(t, analysis.IsAcceptable)
		assert.Equal(t, domain.CostLow, analysis.CostLevel)
		assert.Greater(t, analysis.EstimatedCost, 0.0)
	})

	t.Run("compare_queries/identical", func(t *testing.T) {
		result := callToolE2E(t, s, "compare_queries", map[string]any{
			"source_database": "prod",
			"target_database": "replica",
			"source_query":    "SELECT id, customer, amount FROM orders_src",
			"target_query":    "SELECT id, customer, amount FROM orders_src",
			"key_columns":     []any{"id"},
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var report service.CompareReport
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &report))
		assert.Empty(t, report.BlockedBy)
		require.NotNil(t, report.Comparison)
		assert.Equal(t, domain.MatchIdentical, report.Comparison.MatchStatus)
		assert.Equal(t, int64(5), report.Comparison.TotalRowsSource)
		assert.Equal(t, int64(5), report.Comparison.MatchingRows)
	})

	t.Run("compare_queries/mismatch", func(t *testing.T) {
		result := callToolE2E(t, s, "compare_queries", map[string]any{
			"source_database": "prod",
			"target_database": "replica",
			"source_query":    "SELECT id, customer, amount FROM orders_src",
			"target_query":    "SELECT id, customer, amount FROM orders_tgt",
			"key_columns":     []any{"id"},
			"compare_columns": []any{"amount"},
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var report service.CompareReport
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &report))
		assert.Empty(t, report.BlockedBy)
		require.NotNil(t, report.Comparison)

		cmp := report.Comparison
		assert.Equal(t, domain.MatchMismatch, cmp.MatchStatus)
		assert.Equal(t, int64(5), cmp.TotalRowsSource)
		assert.Equal(t, int64(5), cmp.TotalRowsTarget)
		assert.Equal(t, int64(1), cmp.MissingInTarget, "id 1 only exists in source")
		assert.Equal(t, int64(1), cmp.MissingInSource, "id 6 only exists in target")
		assert.Equal(t, int64(1), cmp.MismatchedRows, "id 3 has a different amount")
		assert.Equal(t, int64(3), cmp.MatchingRows)
	})

	t.Run("compare_queries/blocked_by_validation", func(t *testing.T) {
		result := callToolE2E(t, s, "compare_queries", map[string]any{
			"source_database": "prod",
			"target_database": "replica",
			"source_query":    "DELETE FROM orders_src",
			"target_query":    "SELECT id FROM orders_tgt",
			"key_columns":     []any{"id"},
		})
		require.False(t, result.IsError)

		var report service.CompareReport
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &report))
		assert.Equal(t, service.BlockedByValidation, report.BlockedBy)
		assert.False(t, report.SourceValidation.IsSafe)
		assert.Nil(t, report.Comparison)
	})

	t.Run("temp_tables_cleaned_up", func(t *testing.T) {
		ctx := context.Background()
		var count int64
		err := pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM pg_class WHERE relname LIKE 'tmp_src_%' OR relname LIKE 'tmp_tgt_%' OR relname LIKE 'tmp_mismatch_%'",
		).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count, "no comparison temp tables should survive cleanup")
	})
}

var e2eSessionCounter atomic.Int64

// callToolE2E is like callTool but uses a unique session ID per call,
// allowing multiple calls against the same MCP server.
func callToolE2E(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	sessionID := fmt.Sprintf("e2e-%d", e2eSessionCounter.Add(1))
	session := server.NewInProcessSession(sessionID, nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test-e2e", "version": "1.0"},
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
