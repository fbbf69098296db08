package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
	"github.com/parallaxdb/parallax/internal/dialect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// DatabaseEntry describes one configured database for discovery responses.
type DatabaseEntry struct {
	Name        string         `json:"name"`
	Dialect     domain.Dialect `json:"dialect"`
	Host        string         `json:"host"`
	Description string         `json:"description,omitempty"`
}

// DatabaseStatus is a DatabaseEntry plus the outcome of an availability probe.
type DatabaseStatus struct {
	DatabaseEntry
	Available      bool    `json:"available"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// ConnectorRegistry resolves configured database names to connectors.
type ConnectorRegistry interface {
	Get(name string) (port.Connector, error)
	List() []DatabaseEntry
}

// CompareRequest is the full input for one comparison run.
type CompareRequest struct {
	SourceDatabase string   `json:"source_database"`
	TargetDatabase string   `json:"target_database"`
	SourceQuery    string   `json:"source_query"`
	TargetQuery    string   `json:"target_query"`
	KeyColumns     []string `json:"key_columns"`
	CompareColumns []string `json:"compare_columns,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	OverrideSafety bool     `json:"override_safety,omitempty"`
}

// Blocking stages reported in CompareReport.BlockedBy.
const (
	BlockedByValidation = "validation"
	BlockedByPlan       = "plan_analysis"
)

// CompareReport carries the outcome of every stage that ran. BlockedBy is
// empty when the comparison itself executed.
type CompareReport struct {
	SourceValidation domain.ValidationResult  `json:"source_validation"`
	TargetValidation domain.ValidationResult  `json:"target_validation"`
	SourcePlan       *domain.PlanAnalysis     `json:"source_plan,omitempty"`
	TargetPlan       *domain.PlanAnalysis     `json:"target_plan,omitempty"`
	Comparison       *domain.ComparisonResult `json:"comparison,omitempty"`
	BlockedBy        string                   `json:"blocked_by,omitempty"`
	SafetyOverridden bool                     `json:"safety_overridden,omitempty"`
}

// Pipeline sequences the three safety stages for a comparison request:
// validate both queries, analyze both execution plans, then diff in-database.
// The first failing stage short-circuits the rest. Expected rejections
// (unsafe query, excessive plan) are reported in the CompareReport; returned
// errors are reserved for configuration-level faults such as unknown database
// names or dialect mismatches.
type Pipeline struct {
	validator *domain.QueryValidator
	pgStrict  *domain.PgQueryValidator
	analyzer  *PlanAnalyzer
	registry  ConnectorRegistry
	auditor   port.Auditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation

	allowOverride bool
}

// NewPipeline wires the pipeline stages. maxExecutionTime sets the plan gate
// ceiling; zero keeps the default.
func NewPipeline(registry ConnectorRegistry, auditor port.Auditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation, allowOverride bool, maxExecutionTime time.Duration) *Pipeline {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	return &Pipeline{
		validator:     domain.NewQueryValidator(),
		pgStrict:      domain.NewPgQueryValidator(),
		analyzer:      NewPlanAnalyzer(logger, maxExecutionTime),
		registry:      registry,
		auditor:       auditor,
		logger:        logger,
		tracer:        tracer,
		inst:          inst,
		allowOverride: allowOverride,
	}
}

// ValidateQuery exposes the static validator for standalone use by tools.
func (p *Pipeline) ValidateQuery(sql string) domain.ValidationResult {
	return p.validator.Validate(sql)
}

// MaxExecutionTimeSec reports the plan gate ceiling in seconds.
func (p *Pipeline) MaxExecutionTimeSec() float64 {
	return p.analyzer.MaxTimeSec()
}

// ListDatabases returns every configured database with an availability probe.
func (p *Pipeline) ListDatabases(ctx context.Context) []DatabaseStatus {
	entries := p.registry.List()
	statuses := make([]DatabaseStatus, 0, len(entries))
	for _, entry := range entries {
		status := DatabaseStatus{DatabaseEntry: entry}
		conn, err := p.registry.Get(entry.Name)
		if err != nil {
			status.ErrorMessage = err.Error()
			statuses = append(statuses, status)
			continue
		}
		start := time.Now()
		err = conn.Ping(ctx)
		status.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			status.ErrorMessage = err.Error()
		} else {
			status.Available = true
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// AnalyzeCost validates a query and estimates its execution cost against one
// configured database without running it.
func (p *Pipeline) AnalyzeCost(ctx context.Context, database, query string) (domain.PlanAnalysis, error) {
	conn, err := p.registry.Get(database)
	if err != nil {
		return domain.PlanAnalysis{}, err
	}
	sqld, err := dialect.New(conn.Dialect())
	if err != nil {
		return domain.PlanAnalysis{}, err
	}

	validation := p.validator.Validate(query)
	if !validation.IsSafe {
		p.inst.IncrementValidationBlocked(ctx)
		return failedAnalysis(fmt.Sprintf("Query rejected: %v", validation.Violations)), nil
	}

	session, err := conn.AcquireSession(ctx)
	if err != nil {
		return domain.PlanAnalysis{}, fmt.Errorf("acquiring session on %s: %w", database, err)
	}
	defer func() { _ = session.Close(ctx) }()

	analysis := p.analyzer.AnalyzeQueryCost(ctx, validation.SanitizedQuery, sqld, session)
	if !analysis.IsAcceptable {
		p.inst.IncrementPlanBlocked(ctx)
	}
	return analysis, nil
}

// Compare runs the full pipeline for one request. Temp table cleanup is
// guaranteed on every exit path once the comparer stage is reached.
func (p *Pipeline) Compare(ctx context.Context, req CompareRequest) (*CompareReport, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Compare",
		trace.WithAttributes(
			attribute.String("comparison.source_db", req.SourceDatabase),
			attribute.String("comparison.target_db", req.TargetDatabase),
		),
	)
	defer span.End()

	start := time.Now()

	source, err := p.registry.Get(req.SourceDatabase)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	target, err := p.registry.Get(req.TargetDatabase)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Cross-dialect comparisons never reach the comparer: the diff executes
	// inside one backend and its SQL is single-dialect.
	if source.Dialect() != target.Dialect() {
		err := fmt.Errorf("database types must match: source is %s, target is %s", source.Dialect(), target.Dialect())
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sqld, err := dialect.New(source.Dialect())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &CompareReport{}

	// Stage 1: static read-only validation, both queries.
	report.SourceValidation = p.validateForDialect(req.SourceQuery, source.Dialect())
	report.TargetValidation = p.validateForDialect(req.TargetQuery, source.Dialect())
	if !report.SourceValidation.IsSafe || !report.TargetValidation.IsSafe {
		report.BlockedBy = BlockedByValidation
		p.inst.IncrementValidationBlocked(ctx)
		p.logger.WarnContext(ctx, "comparison blocked by validation",
			slog.String("source_db", req.SourceDatabase),
			slog.String("target_db", req.TargetDatabase),
			slog.Any("source_violations", report.SourceValidation.Violations),
			slog.Any("target_violations", report.TargetValidation.Violations),
		)
		p.audit(ctx, req, "blocked:"+BlockedByValidation, start, nil)
		return report, nil
	}

	sourceSession, err := source.AcquireSession(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("acquiring session on %s: %w", req.SourceDatabase, err)
	}
	defer func() { _ = sourceSession.Close(ctx) }()

	targetSession, err := target.AcquireSession(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("acquiring session on %s: %w", req.TargetDatabase, err)
	}
	defer func() { _ = targetSession.Close(ctx) }()

	// Stage 2: execution plan gate, each query against its own database.
	override := req.OverrideSafety && p.allowOverride
	report.SafetyOverridden = override

	sourcePlan := p.analyzer.AnalyzeQueryCost(ctx, report.SourceValidation.SanitizedQuery, sqld, sourceSession)
	report.SourcePlan = &sourcePlan
	targetPlan := p.analyzer.AnalyzeQueryCost(ctx, report.TargetValidation.SanitizedQuery, sqld, targetSession)
	report.TargetPlan = &targetPlan

	if (!sourcePlan.IsAcceptable || !targetPlan.IsAcceptable) && !override {
		report.BlockedBy = BlockedByPlan
		p.inst.IncrementPlanBlocked(ctx)
		p.logger.WarnContext(ctx, "comparison blocked by plan analysis",
			slog.String("source_db", req.SourceDatabase),
			slog.Float64("source_estimated_time_sec", sourcePlan.EstimatedTimeSec),
			slog.Float64("target_estimated_time_sec", targetPlan.EstimatedTimeSec),
		)
		p.audit(ctx, req, "blocked:"+BlockedByPlan, start, nil)
		return report, nil
	}

	// Stage 3: in-database diff on the source session. Both temp tables are
	// built there, so the target query must be resolvable from the source
	// database's connection.
	comparer := NewComparer(sqld, p.logger)
	defer comparer.CleanupTempTables(ctx, sourceSession)

	cfg := domain.ComparisonConfig{
		SourceQuery:    report.SourceValidation.SanitizedQuery,
		TargetQuery:    report.TargetValidation.SanitizedQuery,
		KeyColumns:     req.KeyColumns,
		CompareColumns: req.CompareColumns,
		CaseSensitive:  true,
	}

	result := comparer.CompareTables(ctx, cfg, sourceSession, req.SessionID)
	report.Comparison = &result

	p.inst.IncrementComparisonCount(ctx)
	p.inst.RecordComparisonDuration(ctx, result.ComparisonTimeSec*1000)
	if result.MatchStatus == domain.MatchError {
		p.inst.IncrementComparisonErrors(ctx)
		span.SetStatus(codes.Error, result.ErrorMessage)
	}
	span.SetAttributes(
		attribute.String("comparison.match_status", string(result.MatchStatus)),
		attribute.Int64("comparison.total_rows_source", result.TotalRowsSource),
		attribute.Int64("comparison.total_rows_target", result.TotalRowsTarget),
	)

	var auditErr error
	if result.MatchStatus == domain.MatchError {
		auditErr = fmt.Errorf("%s", result.ErrorMessage)
	}
	p.audit(ctx, req, string(result.MatchStatus), start, auditErr)

	return report, nil
}

// validateForDialect runs the portable checks and, for PostgreSQL, an
// additional AST-level check with the real parser.
func (p *Pipeline) validateForDialect(sql string, d domain.Dialect) domain.ValidationResult {
	result := p.validator.Validate(sql)
	if !result.IsSafe || d != domain.DialectPostgreSQL {
		return result
	}
	if err := p.pgStrict.Validate(result.SanitizedQuery); err != nil {
		result.IsSafe = false
		result.SanitizedQuery = ""
		result.Violations = append(result.Violations, fmt.Sprintf("PostgreSQL parser rejected query: %v", err))
	}
	return result
}

func (p *Pipeline) audit(ctx context.Context, req CompareRequest, status string, start time.Time, err error) {
	p.auditor.Record(ctx, port.AuditEntry{
		Tool:           toolNameFromCtx(ctx),
		SourceDatabase: req.SourceDatabase,
		TargetDatabase: req.TargetDatabase,
		SQL:            req.SourceQuery,
		MatchStatus:    status,
		DurationMS:     time.Since(start).Milliseconds(),
		Err:            err,
	})
}
