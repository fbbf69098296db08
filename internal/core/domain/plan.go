package domain

// CostLevel buckets an estimated execution time.
type CostLevel string

const (
	CostLow       CostLevel = "low"       // under a minute
	CostMedium    CostLevel = "medium"    // 1-3 minutes
	CostHigh      CostLevel = "high"      // 3-5 minutes
	CostExcessive CostLevel = "excessive" // over 5 minutes, blocked
)

const (
	// MaxExecutionTimeSec is the default gate: queries estimated above it are
	// blocked before they ever reach the database. The analyzer's ceiling is
	// configurable; this constant also anchors the cost level buckets.
	MaxExecutionTimeSec = 300

	// WarnRows is the row-count threshold above which time estimates are
	// scaled up and a filtering recommendation is emitted.
	WarnRows = 1_000_000
)

// PlanAnalysis is the result of execution plan analysis for one query.
// CostLevel is classified against the fixed bucket thresholds; IsAcceptable
// is derived by the analyzer from its configured ceiling rather than
// supplied by the dialect parser.
type PlanAnalysis struct {
	IsAcceptable     bool      `json:"is_acceptable"`
	EstimatedTimeSec float64   `json:"estimated_time_sec"`
	EstimatedRows    int64     `json:"estimated_rows"`
	EstimatedCost    float64   `json:"estimated_cost"`
	CostLevel        CostLevel `json:"cost_level"`
	HasFullTableScan bool      `json:"has_full_table_scan"`
	Recommendations  []string  `json:"recommendations"`
	RawPlan          string    `json:"raw_plan,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// ClassifyCost maps an estimated execution time to a cost bucket.
func ClassifyCost(estimatedTimeSec float64) CostLevel {
	switch {
	case estimatedTimeSec > MaxExecutionTimeSec:
		return CostExcessive
	case estimatedTimeSec > 180:
		return CostHigh
	case estimatedTimeSec > 60:
		return CostMedium
	default:
		return CostLow
	}
}
