// Package dialect provides the per-backend SQL generation strategies used by
// the comparison pipeline: EXPLAIN statements, temporary table DDL and the
// diff query that classifies mismatching keys.
package dialect

import (
	"fmt"
	"strings"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
)

// New returns the SQLDialect variant for d. Callers are expected to have
// validated the dialect; an unknown value is a programmer error.
func New(d domain.Dialect) (port.SQLDialect, error) {
	switch d {
	case domain.DialectOracle:
		return Oracle{}, nil
	case domain.DialectMySQL:
		return MySQL{}, nil
	case domain.DialectPostgreSQL:
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}

// joinOn builds "l.c1 = r.c1 AND l.c2 = r.c2" for the key columns.
func joinOn(left, right string, cols []string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", left, col, right, col)
	}
	return strings.Join(parts, " AND ")
}

// qualified builds "a.c1, a.c2" for the key columns.
func qualified(alias string, cols []string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = alias + "." + col
	}
	return strings.Join(parts, ", ")
}

// coalesced builds "COALESCE(s.c, t.c) AS c" projections for the key columns.
func coalesced(cols []string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("COALESCE(s.%s, t.%s) AS %s", col, col, col)
	}
	return strings.Join(parts, ", ")
}
