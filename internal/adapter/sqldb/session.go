package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/parallaxdb/parallax/internal/core/port"
)

// Session is one pinned connection. Temporary tables created on it live until
// Close returns the connection to the pool.
type Session struct {
	conn         *sql.Conn
	sqld         port.SQLDialect
	queryTimeout time.Duration
}

// Execute runs a single statement. Statements that produce a result set are
// fully materialized; DDL and other non-returning statements yield nil rows.
func (s *Session) Execute(ctx context.Context, query string) ([]map[string]any, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	if !returnsRows(query) {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("executing statement: %w", err)
		}
		return nil, nil
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Explain runs an already-built EXPLAIN statement and returns the plan text.
// Oracle's EXPLAIN PLAN FOR writes into PLAN_TABLE and the plan is read back
// with a follow-up query; MySQL returns the plan rows directly.
func (s *Session) Explain(ctx context.Context, stmt string) (string, error) {
	if followUp := s.sqld.ExplainFollowUp(); followUp != "" {
		if _, err := s.Execute(ctx, stmt); err != nil {
			return "", fmt.Errorf("populating plan table: %w", err)
		}
		stmt = followUp
	}

	rows, err := s.Execute(ctx, stmt)
	if err != nil {
		return "", fmt.Errorf("reading plan: %w", err)
	}
	return flattenPlan(rows), nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.conn.Close()
}

// returnsRows reports whether the statement yields a result set. EXPLAIN is
// included because MySQL's EXPLAIN returns rows like a query.
func returnsRows(query string) bool {
	first := strings.ToUpper(firstWord(query))
	switch first {
	case "SELECT", "WITH", "EXPLAIN", "SHOW", "DESCRIBE", "DESC":
		return true
	}
	return false
}

func firstWord(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// flattenPlan renders plan rows as "column: value" lines so the text-based
// plan parsers can scan them regardless of dialect.
func flattenPlan(rows []map[string]any) string {
	var b strings.Builder
	for _, row := range rows {
		if len(row) == 1 {
			// Oracle's DBMS_XPLAN output is a single text column per row.
			for _, v := range row {
				fmt.Fprintf(&b, "%v\n", v)
			}
			continue
		}
		for col, v := range row {
			if v == nil {
				fmt.Fprintf(&b, "%s: NULL\n", col)
				continue
			}
			fmt.Fprintf(&b, "%s: %v\n", col, v)
		}
	}
	return b.String()
}
