package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var mysqlRowsRe = regexp.MustCompile(`(?i)rows[:\s]+(\d+)`)

// ParseMySQLPlan extracts row estimates from EXPLAIN output. MySQL reports a
// per-table row estimate; for a join chain the product of the estimates is a
// crude but serviceable proxy for the join fan-out.
func ParseMySQLPlan(plan string) PlanAnalysis {
	var recommendations []string
	fullScan := false
	var cost float64

	var totalRows int64
	matches := mysqlRowsRe.FindAllStringSubmatch(plan, -1)
	if len(matches) == 1 {
		totalRows, _ = strconv.ParseInt(matches[0][1], 10, 64)
	} else if len(matches) > 1 {
		totalRows = 1
		for _, m := range matches {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			totalRows *= n
		}
	}

	if strings.Contains(plan, "type: ALL") || strings.Contains(plan, "ALL") {
		fullScan = true
		recommendations = append(recommendations, "Full table scan detected. Consider adding indexes.")
	}

	if strings.Contains(plan, "Using filesort") {
		recommendations = append(recommendations, "Filesort detected. Consider adding index on ORDER BY columns.")
		cost += 1000
	}

	if strings.Contains(plan, "Using temporary") {
		recommendations = append(recommendations, "Temporary table used. Consider query optimization.")
		cost += 500
	}

	// MySQL costs in rows read; roughly a million rows a second, plus the
	// synthetic cost units from filesort / temporary tables.
	estimatedTime := float64(totalRows)/WarnRows + cost/1000

	if fullScan && strings.Contains(plan, "NULL") {
		recommendations = append(recommendations, "No index used. Query may be very slow!")
	}

	return PlanAnalysis{
		EstimatedTimeSec: estimatedTime,
		EstimatedRows:    totalRows,
		EstimatedCost:    cost,
		CostLevel:        ClassifyCost(estimatedTime),
		HasFullTableScan: fullScan,
		Recommendations:  recommendations,
		RawPlan:          plan,
	}
}
