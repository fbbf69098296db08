package dialect

import (
	"fmt"
	"strings"

	"github.com/parallaxdb/parallax/internal/core/domain"
)

type MySQL struct{}

func (MySQL) Name() domain.Dialect { return domain.DialectMySQL }

func (MySQL) ExplainSQL(query string) string {
	return "EXPLAIN " + query
}

func (MySQL) ExplainFollowUp() string { return "" }

func (MySQL) CreateTempTable(name, query string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s AS %s", name, query)
}

func (MySQL) DropTempTable(name string) string {
	return fmt.Sprintf("DROP TEMPORARY TABLE IF EXISTS %s", name)
}

// DiffQuery unions two LEFT JOIN anti-joins since MySQL has no FULL OUTER
// JOIN. Only missing-row cases are detected on this path; value differences
// on matching keys are not classified.
func (MySQL) DiffQuery(sourceTable, targetTable, mismatchTable string, cfg domain.ComparisonConfig) string {
	firstKey := cfg.KeyColumns[0]

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMPORARY TABLE %s AS\n", mismatchTable)
	fmt.Fprintf(&b, "SELECT '%s' AS mismatch_type, %s\n", domain.MissingInTarget, qualified("s", cfg.KeyColumns))
	fmt.Fprintf(&b, "FROM %s s\nLEFT JOIN %s t ON %s\n", sourceTable, targetTable, joinOn("s", "t", cfg.KeyColumns))
	fmt.Fprintf(&b, "WHERE t.%s IS NULL\n", firstKey)
	fmt.Fprintf(&b, "UNION ALL\n")
	fmt.Fprintf(&b, "SELECT '%s' AS mismatch_type, %s\n", domain.MissingInSource, qualified("t", cfg.KeyColumns))
	fmt.Fprintf(&b, "FROM %s t\nLEFT JOIN %s s ON %s\n", targetTable, sourceTable, joinOn("t", "s", cfg.KeyColumns))
	fmt.Fprintf(&b, "WHERE s.%s IS NULL", firstKey)
	return b.String()
}
