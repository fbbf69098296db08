package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Matches both EXPLAIN (FORMAT JSON) output ("Total Cost": 1234.56) and the
// text format ("cost=0.00..1234.56").
var (
	pgTotalCostRe = regexp.MustCompile(`(?i)Total Cost["\s:]+([0-9.]+)`)
	pgCostRangeRe = regexp.MustCompile(`(?i)cost["\s:=]+[0-9.]+\.\.([0-9.]+)`)
	pgPlanRowsRe  = regexp.MustCompile(`(?i)Plan Rows["\s:]+(\d+)`)
	pgRowsRe      = regexp.MustCompile(`(?i)rows["\s:=]+(\d+)`)
)

// ParsePostgresPlan extracts cost and row estimates from EXPLAIN output.
func ParsePostgresPlan(plan string) PlanAnalysis {
	var recommendations []string
	fullScan := false

	var cost float64
	if m := pgTotalCostRe.FindStringSubmatch(plan); m != nil {
		cost, _ = strconv.ParseFloat(m[1], 64)
	} else if m := pgCostRangeRe.FindStringSubmatch(plan); m != nil {
		cost, _ = strconv.ParseFloat(m[1], 64)
	}

	rows := firstInt(plan, pgPlanRowsRe, pgRowsRe)

	if strings.Contains(plan, "Seq Scan") {
		fullScan = true
		recommendations = append(recommendations, "Sequential scan detected. Consider adding indexes.")
	}

	if strings.Contains(plan, "Nested Loop") && rows > 10_000 {
		recommendations = append(recommendations, "Nested loop with large dataset. Consider hash join.")
	}

	if strings.Contains(plan, "Sort") {
		recommendations = append(recommendations, "Sort operation detected. Ensure indexed ORDER BY if possible.")
	}

	// Planner cost units approximate page fetches; 10000 units ~= 1 second.
	estimatedTime := cost / 10000
	if rows > WarnRows {
		estimatedTime *= (float64(rows) / WarnRows) * 0.5
		recommendations = append(recommendations,
			fmt.Sprintf("High row count: %d rows. Consider limiting results.", rows))
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
