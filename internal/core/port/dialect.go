package port

import "github.com/parallaxdb/parallax/internal/core/domain"

// SQLDialect is the capability set that varies per backend: EXPLAIN syntax,
// temp table DDL and the diff query shape. One concrete variant exists per
// supported dialect; nothing else in the pipeline branches on dialect.
type SQLDialect interface {
	Name() domain.Dialect

	// ExplainSQL wraps a query in the dialect's EXPLAIN statement.
	ExplainSQL(query string) string

	// ExplainFollowUp returns a statement that must run after ExplainSQL to
	// fetch the plan text, or "" when ExplainSQL itself returns the plan.
	// Oracle's EXPLAIN PLAN FOR writes into PLAN_TABLE and needs DBMS_XPLAN.
	ExplainFollowUp() string

	// CreateTempTable returns DDL materializing query results into a
	// session-scoped temporary table.
	CreateTempTable(name, query string) string

	// DropTempTable returns the statement releasing a temporary table.
	DropTempTable(name string) string

	// DiffQuery returns a statement that classifies every non-matching key
	// into the mismatch temp table.
	DiffQuery(sourceTable, targetTable, mismatchTable string, cfg domain.ComparisonConfig) string
}
