package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
)

// PlanAnalyzer estimates query cost from the database's own EXPLAIN output
// and blocks queries predicted to run longer than the configured gate.
type PlanAnalyzer struct {
	logger     *slog.Logger
	maxTimeSec float64
}

// NewPlanAnalyzer builds an analyzer gating on maxExecutionTime. A
// non-positive value falls back to the default ceiling.
func NewPlanAnalyzer(logger *slog.Logger, maxExecutionTime time.Duration) *PlanAnalyzer {
	maxTimeSec := float64(domain.MaxExecutionTimeSec)
	if maxExecutionTime > 0 {
		maxTimeSec = maxExecutionTime.Seconds()
	}
	return &PlanAnalyzer{logger: logger, maxTimeSec: maxTimeSec}
}

// MaxTimeSec returns the gate ceiling in seconds.
func (a *PlanAnalyzer) MaxTimeSec() float64 { return a.maxTimeSec }

// AnalyzeQueryCost runs the dialect's EXPLAIN via the supplied executor and
// parses the output into a PlanAnalysis. It never returns an error: an
// EXPLAIN failure or an unparsable plan is captured in ErrorMessage with
// IsAcceptable=false and CostLevel=excessive. Unknown cost is treated as
// unsafe.
func (a *PlanAnalyzer) AnalyzeQueryCost(ctx context.Context, query string, sqld port.SQLDialect, explain port.ExplainExecutor) domain.PlanAnalysis {
	plan, err := explain.Explain(ctx, sqld.ExplainSQL(query))
	if err != nil {
		a.logger.WarnContext(ctx, "explain failed",
			slog.String("dialect", sqld.Name().String()),
			slog.String("error.message", err.Error()),
		)
		return failedAnalysis(fmt.Sprintf("Plan analysis failed: %v", err))
	}

	var analysis domain.PlanAnalysis
	switch sqld.Name() {
	case domain.DialectOracle:
		analysis = domain.ParseOraclePlan(plan)
	case domain.DialectMySQL:
		analysis = domain.ParseMySQLPlan(plan)
	case domain.DialectPostgreSQL:
		analysis = domain.ParsePostgresPlan(plan)
	default:
		return failedAnalysis(fmt.Sprintf("Plan analysis failed: unsupported dialect %q", sqld.Name()))
	}

	analysis.IsAcceptable = analysis.EstimatedTimeSec <= a.maxTimeSec

	if !analysis.IsAcceptable {
		a.logger.WarnContext(ctx, "query blocked by plan analysis",
			slog.String("dialect", sqld.Name().String()),
			slog.Float64("estimated_time_sec", analysis.EstimatedTimeSec),
			slog.Int64("estimated_rows", analysis.EstimatedRows),
		)
	} else {
		a.logger.DebugContext(ctx, "query cost acceptable",
			slog.String("dialect", sqld.Name().String()),
			slog.Float64("estimated_time_sec", analysis.EstimatedTimeSec),
			slog.Int64("estimated_rows", analysis.EstimatedRows),
			slog.String("cost_level", string(analysis.CostLevel)),
		)
	}

	return analysis
}

func failedAnalysis(msg string) domain.PlanAnalysis {
	return domain.PlanAnalysis{
		IsAcceptable: false,
		CostLevel:    domain.CostExcessive,
		ErrorMessage: msg,
	}
}
