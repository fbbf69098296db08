package dialect

import (
	"fmt"
	"strings"

	"github.com/parallaxdb/parallax/internal/core/domain"
)

type Oracle struct{}

func (Oracle) Name() domain.Dialect { return domain.DialectOracle }

func (Oracle) ExplainSQL(query string) string {
	return "EXPLAIN PLAN FOR " + query
}

// ExplainFollowUp fetches the plan that EXPLAIN PLAN FOR wrote to PLAN_TABLE.
func (Oracle) ExplainFollowUp() string {
	return "SELECT plan_table_output FROM TABLE(DBMS_XPLAN.DISPLAY())"
}

// CreateTempTable uses a global temporary table; rows are visible only to the
// creating session and must survive intermediate commits.
func (Oracle) CreateTempTable(name, query string) string {
	return fmt.Sprintf("CREATE GLOBAL TEMPORARY TABLE %s ON COMMIT PRESERVE ROWS AS %s", name, query)
}

func (Oracle) DropTempTable(name string) string {
	return fmt.Sprintf("DROP TABLE %s", name)
}

// DiffQuery unions two NOT EXISTS anti-joins. As with MySQL, only missing-row
// cases are detected; value differences on matching keys are not classified.
func (Oracle) DiffQuery(sourceTable, targetTable, mismatchTable string, cfg domain.ComparisonConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE GLOBAL TEMPORARY TABLE %s ON COMMIT PRESERVE ROWS AS\n", mismatchTable)
	fmt.Fprintf(&b, "SELECT '%s' AS mismatch_type, %s\n", domain.MissingInTarget, qualified("s", cfg.KeyColumns))
	fmt.Fprintf(&b, "FROM %s s\nWHERE NOT EXISTS (SELECT 1 FROM %s t WHERE %s)\n", sourceTable, targetTable, joinOn("s", "t", cfg.KeyColumns))
	fmt.Fprintf(&b, "UNION ALL\n")
	fmt.Fprintf(&b, "SELECT '%s' AS mismatch_type, %s\n", domain.MissingInSource, qualified("t", cfg.KeyColumns))
	fmt.Fprintf(&b, "FROM %s t\nWHERE NOT EXISTS (SELECT 1 FROM %s s WHERE %s)", targetTable, sourceTable, joinOn("t", "s", cfg.KeyColumns))
	return b.String()
}
