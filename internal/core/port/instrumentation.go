package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	IncrementValidationBlocked(ctx context.Context)
	IncrementPlanBlocked(ctx context.Context)
	IncrementComparisonCount(ctx context.Context)
	IncrementComparisonErrors(ctx context.Context)
	RecordComparisonDuration(ctx context.Context, ms float64)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementValidationBlocked(context.Context)       {}
func (NoopInstrumentation) IncrementPlanBlocked(context.Context)             {}
func (NoopInstrumentation) IncrementComparisonCount(context.Context)         {}
func (NoopInstrumentation) IncrementComparisonErrors(context.Context)        {}
func (NoopInstrumentation) RecordComparisonDuration(context.Context, float64) {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)       {}
