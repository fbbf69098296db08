package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Oracle DBMS_XPLAN output is a fixed-width table whose numeric columns look
// like "| 10000000 | 500000 (5) |": rows, then cost with a CPU percentage.
var (
	oracleCostTableRe = regexp.MustCompile(`\|\s*(\d+)\s*\(\d+%?\)`)
	oracleCostLabelRe = regexp.MustCompile(`(?i)Cost\s*[:=]\s*(\d+)`)
	oracleRowsTableRe = regexp.MustCompile(`\|\s*(\d+)\s*\|\s*\d+\s*\(`)
	oracleCardRe      = regexp.MustCompile(`(?i)Cardinality\s*[:=]\s*(\d+)`)
	oracleRowsLabelRe = regexp.MustCompile(`(?i)Rows\s*[:=]\s*(\d+)`)
)

// ParseOraclePlan extracts cost and cardinality estimates from EXPLAIN PLAN
// output. IsAcceptable is left false; the analyzer derives it from the final
// time estimate.
func ParseOraclePlan(plan string) PlanAnalysis {
	var recommendations []string
	fullScan := false

	cost := float64(firstInt(plan, oracleCostTableRe, oracleCostLabelRe))
	rows := firstInt(plan, oracleRowsTableRe, oracleCardRe, oracleRowsLabelRe)

	if strings.Contains(plan, "TABLE ACCESS FULL") {
		fullScan = true
		recommendations = append(recommendations, "Full table scan detected. Consider adding indexes.")
	}

	// A Cartesian join means a missing join condition; the optimizer cost
	// wildly understates the real work, so penalise it.
	if strings.Contains(plan, "CARTESIAN") {
		recommendations = append(recommendations, "Cartesian product detected! Missing JOIN condition?")
		cost *= 10
	}

	// Oracle cost is unitless; cost ~= milliseconds is a workable heuristic.
	estimatedTime := cost / 1000
	if rows > WarnRows {
		estimatedTime *= float64(rows) / WarnRows
		recommendations = append(recommendations,
			fmt.Sprintf("High row count: %d rows. Consider adding WHERE filters.", rows))
	}

	return PlanAnalysis{
		EstimatedTimeSec: estimatedTime,
		EstimatedRows:    rows,
		EstimatedCost:    cost,
		CostLevel:        ClassifyCost(estimatedTime),
		HasFullTableScan: fullScan,
		Recommendations:  recommendations,
		RawPlan:          plan,
	}
}

// firstInt returns the first capture group of the first pattern that matches,
// or 0 when none do.
func firstInt(s string, patterns ...*regexp.Regexp) int64 {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}
