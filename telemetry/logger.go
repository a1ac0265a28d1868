// Package telemetry wires zerolog structured logging and OpenTelemetry
// traces/metrics for the assessment engine.
package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook stamps trace and span ids onto every log entry so that log
// lines correlate with spans.
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL correlation.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a component logger.
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger carrying the context for trace propagation.
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogEvaluationFailure records a rule that failed for an asset.
func (l *Logger) LogEvaluationFailure(ctx context.Context, ruleID, assetID string, failedConditions int) {
	l.WithContext(ctx).Info().
		Str("rule_id", ruleID).
		Str("asset_id", assetID).
		Int("failed_conditions", failedConditions).
		Msg("rule failed for asset")
}

// LogFulfillment records the aggregated fulfillment of a control.
func (l *Logger) LogFulfillment(ctx context.Context, controlID string, fulfilled string) {
	l.WithContext(ctx).Info().
		Str("control_id", controlID).
		Str("fulfilled", fulfilled).
		Msg("control fulfillment evaluated")
}
