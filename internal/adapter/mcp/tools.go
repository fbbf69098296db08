package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/service"
)

// Server metadata
const serverName = "parallax"

// Tool descriptions
const (
	descListDatabases = "List all configured databases with their type, host, and current availability. " +
		"Call this first to discover which database names can be used with the other tools."

	descValidateQuery = "Statically check that a SQL query is read-only without touching any database. " +
		"Returns every violation found (dangerous keywords, multi-statement input, SELECT INTO, suspicious " +
		"comments, UNION injection patterns) plus the sanitized query that would actually run. " +
		"Use this to pre-flight queries before analyze_query_cost or compare_queries."

	descValidateQueryParam = "SQL query to validate (SELECT or WITH statements only)"

	descAnalyzeCost = "Estimate a query's execution cost via the database's EXPLAIN facility without running it. " +
		"Returns estimated rows, cost, estimated execution time, a cost level (low/medium/high/excessive), " +
		"full-table-scan detection, and tuning recommendations. " +
		"Queries estimated above the configured time ceiling are marked unacceptable and " +
		"would be blocked by compare_queries."

	descAnalyzeCostDB    = "Name of the configured database to analyze against (see list_databases)"
	descAnalyzeCostQuery = "SQL query to analyze (SELECT or WITH statements only)"

	descCompareQueries = "Compare the result sets of two read-only queries across two databases of the same type. " +
		"Both queries are validated and cost-checked first; the diff then runs inside the source database " +
		"using session-scoped temporary tables that are always dropped afterwards. " +
		"Returns per-stage results: validation for both queries, plan analysis for both, and the row-level " +
		"comparison (matching rows, rows missing on either side, value mismatches) when it ran. " +
		"key_columns must uniquely identify rows in both result sets."

	descCompareSourceDB   = "Name of the source database (see list_databases)"
	descCompareTargetDB   = "Name of the target database; must be the same type as the source"
	descCompareSourceSQL  = "Query producing the source result set"
	descCompareTargetSQL  = "Query producing the target result set; must be resolvable from the source database's connection"
	descCompareKeyCols    = "Column names that uniquely identify a row in both result sets"
	descCompareCmpCols    = "Optional: restrict value comparison to these columns"
	descCompareSessionID  = "Optional: caller-supplied identifier recorded in the comparison logs for traceability"
	descCompareOverride   = "Optional: run the comparison even if plan analysis flags a query as too expensive. Only honored when the server allows overrides."

	descSafetyInfo = "Describe the safety pipeline every comparison goes through: the static validation rules, " +
		"the execution plan gate with its time ceiling, and the temporary table lifecycle. " +
		"Use this to understand why a query was blocked."
)

func RegisterTools(s *server.MCPServer, pipeline *service.Pipeline) {
	s.AddTool(
		mcp.NewTool("list_databases",
			mcp.WithDescription(descListDatabases),
		),
		listDatabasesHandler(pipeline),
	)

	s.AddTool(
		mcp.NewTool("validate_query",
			mcp.WithDescription(descValidateQuery),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description(descValidateQueryParam),
			),
		),
		validateQueryHandler(pipeline),
	)

	s.AddTool(
		mcp.NewTool("analyze_query_cost",
			mcp.WithDescription(descAnalyzeCost),
			mcp.WithString("database",
				mcp.Required(),
				mcp.Description(descAnalyzeCostDB),
			),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description(descAnalyzeCostQuery),
			),
		),
		analyzeCostHandler(pipeline),
	)

	s.AddTool(
		mcp.NewTool("compare_queries",
			mcp.WithDescription(descCompareQueries),
			mcp.WithString("source_database",
				mcp.Required(),
				mcp.Description(descCompareSourceDB),
			),
			mcp.WithString("target_database",
				mcp.Required(),
				mcp.Description(descCompareTargetDB),
			),
			mcp.WithString("source_query",
				mcp.Required(),
				mcp.Description(descCompareSourceSQL),
			),
			mcp.WithString("target_query",
				mcp.Required(),
				mcp.Description(descCompareTargetSQL),
			),
			mcp.WithArray("key_columns",
				mcp.Required(),
				mcp.Description(descCompareKeyCols),
			),
			mcp.WithArray("compare_columns",
				mcp.Description(descCompareCmpCols),
			),
			mcp.WithString("session_id",
				mcp.Description(descCompareSessionID),
			),
			mcp.WithBoolean("override_safety",
				mcp.Description(descCompareOverride),
			),
		),
		compareQueriesHandler(pipeline),
	)

	s.AddTool(
		mcp.NewTool("comparison_safety_info",
			mcp.WithDescription(descSafetyInfo),
		),
		safetyInfoHandler(pipeline),
	)
}

func listDatabasesHandler(pipeline *service.Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statuses := pipeline.ListDatabases(ctx)

		data, err := json.Marshal(statuses)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func validateQueryHandler(pipeline *service.Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, ok := request.GetArguments()["query"].(string)
		if !ok || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		result := pipeline.ValidateQuery(query)

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func analyzeCostHandler(pipeline *service.Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		database, ok := request.GetArguments()["database"].(string)
		if !ok || database == "" {
			return mcp.NewToolResultError("database is required"), nil
		}
		query, ok := request.GetArguments()["query"].(string)
		if !ok || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		ctx = service.WithToolName(ctx, "analyze_query_cost")
		analysis, err := pipeline.AnalyzeCost(ctx, database, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cost analysis failed: %v", err)), nil
		}

		data, err := json.Marshal(analysis)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func compareQueriesHandler(pipeline *service.Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		req := service.CompareRequest{}
		var ok bool
		if req.SourceDatabase, ok = args["source_database"].(string); !ok || req.SourceDatabase == "" {
			return mcp.NewToolResultError("source_database is required"), nil
		}
		if req.TargetDatabase, ok = args["target_database"].(string); !ok || req.TargetDatabase == "" {
			return mcp.NewToolResultError("target_database is required"), nil
		}
		if req.SourceQuery, ok = args["source_query"].(string); !ok || req.SourceQuery == "" {
			return mcp.NewToolResultError("source_query is required"), nil
		}
		if req.TargetQuery, ok = args["target_query"].(string); !ok || req.TargetQuery == "" {
			return mcp.NewToolResultError("target_query is required"), nil
		}

		req.KeyColumns = stringSlice(args["key_columns"])
		if len(req.KeyColumns) == 0 {
			return mcp.NewToolResultError("key_columns is required"), nil
		}
		req.CompareColumns = stringSlice(args["compare_columns"])
		req.SessionID, _ = args["session_id"].(string)
		req.OverrideSafety, _ = args["override_safety"].(bool)

		ctx = service.WithToolName(ctx, "compare_queries")
		report, err := pipeline.Compare(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("comparison failed: %v", err)), nil
		}

		data, err := json.Marshal(report)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func safetyInfoHandler(pipeline *service.Pipeline) server.ToolHandlerFunc {
	info := map[string]any{
		"stages": []string{"validation", "plan_analysis", "comparison"},
		"validation": map[string]any{
			"allowed_statements": []string{"SELECT", "WITH"},
			"dangerous_keywords": domain.DangerousKeywords(),
			"other_checks": []string{
				"multi-statement input",
				"SELECT INTO",
				"comments containing dangerous keywords",
				"UNION followed by dangerous keywords",
			},
		},
		"plan_analysis": map[string]any{
			"max_estimated_time_sec": pipeline.MaxExecutionTimeSec(),
			"cost_levels": map[string]string{
				string(domain.CostLow):       "under 60s estimated",
				string(domain.CostMedium):    "60s to 180s estimated",
				string(domain.CostHigh):      "180s to 300s estimated",
				string(domain.CostExcessive): "over 300s estimated, blocked",
			},
		},
		"comparison": map[string]any{
			"mechanism": "session-scoped temporary tables diffed inside the source database",
			"cleanup":   "temporary tables are dropped after every comparison, including failures",
		},
	}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(info)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// stringSlice coerces a JSON array argument into []string, skipping
// non-string elements.
func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
