package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/parallaxdb/parallax"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	ValidationBlocked  metric.Int64Counter
	PlanBlocked        metric.Int64Counter
	ComparisonCount    metric.Int64Counter
	ComparisonErrors   metric.Int64Counter
	ComparisonDuration metric.Float64Histogram
	ToolDuration       metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	validationBlocked, _ := meter.Int64Counter("parallax.validation.blocked",
		metric.WithDescription("Queries rejected by static read-only validation"),
	)
	planBlocked, _ := meter.Int64Counter("parallax.plan.blocked",
		metric.WithDescription("Queries rejected by execution plan analysis"),
	)
	comparisonCount, _ := meter.Int64Counter("parallax.comparison.count",
		metric.WithDescription("Total number of comparisons executed"),
	)
	comparisonErrors, _ := meter.Int64Counter("parallax.comparison.errors",
		metric.WithDescription("Total number of failed comparisons"),
	)
	comparisonDuration, _ := meter.Float64Histogram("parallax.comparison.duration",
		metric.WithDescription("End-to-end comparison duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("parallax.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		ValidationBlocked:  validationBlocked,
		PlanBlocked:        planBlocked,
		ComparisonCount:    comparisonCount,
		ComparisonErrors:   comparisonErrors,
		ComparisonDuration: comparisonDuration,
		ToolDuration:       toolDuration,
	}
}

func (i *Instruments) IncrementValidationBlocked(ctx context.Context) {
	i.ValidationBlocked.Add(ctx, 1)
}

func (i *Instruments) IncrementPlanBlocked(ctx context.Context) {
	i.PlanBlocked.Add(ctx, 1)
}

func (i *Instruments) IncrementComparisonCount(ctx context.Context) {
	i.ComparisonCount.Add(ctx, 1)
}

func (i *Instruments) IncrementComparisonErrors(ctx context.Context) {
	i.ComparisonErrors.Add(ctx, 1)
}

func (i *Instruments) RecordComparisonDuration(ctx context.Context, ms float64) {
	i.ComparisonDuration.Record(ctx, ms)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
