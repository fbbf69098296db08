package dialect

import (
	"fmt"
	"strings"

	"github.com/parallaxdb/parallax/internal/core/domain"
)

type Postgres struct{}

func (Postgres) Name() domain.Dialect { return domain.DialectPostgreSQL }

func (Postgres) ExplainSQL(query string) string {
	return "EXPLAIN (FORMAT JSON, ANALYZE FALSE) " + query
}

func (Postgres) ExplainFollowUp() string { return "" }

func (Postgres) CreateTempTable(name, query string) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s AS %s", name, query)
}

func (Postgres) DropTempTable(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", name)
}

// DiffQuery uses a single FULL OUTER JOIN. Which side is missing is decided
// from the first key column only; a composite key whose leading column is
// independently nullable can be misclassified.
//
// When compare columns are configured, rows whose keys match on both sides
// but whose compared values differ are classified as value_mismatch via
// IS DISTINCT FROM (null-safe inequality).
func (Postgres) DiffQuery(sourceTable, targetTable, mismatchTable string, cfg domain.ComparisonConfig) string {
	firstKey := cfg.KeyColumns[0]

	where := fmt.Sprintf("s.%s IS NULL OR t.%s IS NULL", firstKey, firstKey)
	for _, col := range cfg.CompareColumns {
		where += fmt.Sprintf(" OR s.%s IS DISTINCT FROM t.%s", col, col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TABLE %s AS\n", mismatchTable)
	fmt.Fprintf(&b, "SELECT CASE\n")
	fmt.Fprintf(&b, "    WHEN s.%s IS NULL THEN '%s'\n", firstKey, domain.MissingInSource)
	fmt.Fprintf(&b, "    WHEN t.%s IS NULL THEN '%s'\n", firstKey, domain.MissingInTarget)
	fmt.Fprintf(&b, "    ELSE '%s'\n", domain.ValueMismatch)
	fmt.Fprintf(&b, "END AS mismatch_type, %s\n", coalesced(cfg.KeyColumns))
	fmt.Fprintf(&b, "FROM %s s\nFULL OUTER JOIN %s t ON %s\n", sourceTable, targetTable, joinOn("s", "t", cfg.KeyColumns))
	fmt.Fprintf(&b, "WHERE %s", where)
	return b.String()
}
