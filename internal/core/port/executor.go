package port

import (
	"context"

	"github.com/parallaxdb/parallax/internal/core/domain"
)

// QueryExecutor runs one SQL statement and returns its rows as maps keyed by
// column name. DDL statements return no rows.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}

// ExplainExecutor runs a dialect-specific EXPLAIN statement and returns the
// raw plan output as text.
type ExplainExecutor interface {
	Explain(ctx context.Context, sql string) (string, error)
}

// Session is a single checked-out database connection. All statements of one
// comparison must run on the same session: temporary objects are
// session-scoped on every supported backend.
type Session interface {
	QueryExecutor
	ExplainExecutor
	Close(ctx context.Context) error
}

// Connector is a named database entry that can hand out sessions.
type Connector interface {
	Dialect() domain.Dialect
	AcquireSession(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close()
}
