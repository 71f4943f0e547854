package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"orgscope/internal/guard"
)

// DecisionLogger exports guard decisions as OTel log records. Allow decisions are skipped
// unless IncludeAllowed is set; they are already counted by the chain's meter.
type DecisionLogger struct {
	logger         otellog.Logger
	IncludeAllowed bool
	now            func() time.Time
}

var _ guard.Observer = (*DecisionLogger)(nil)

// NewDecisionLogger returns an observer emitting to provider. A nil provider yields a nil
// *DecisionLogger, whose Observe is a no-op.
func NewDecisionLogger(provider *sdklog.LoggerProvider) *DecisionLogger {
	if provider == nil {
		return nil
	}
	return NewDecisionLoggerWithLogger(provider.Logger("orgscope/guard"))
}

// NewDecisionLoggerWithLogger is NewDecisionLogger for an arbitrary otellog.Logger.
func NewDecisionLoggerWithLogger(l otellog.Logger) *DecisionLogger {
	return &DecisionLogger{logger: l, now: time.Now}
}

// Observe implements guard.Observer.
func (d *DecisionLogger) Observe(ctx context.Context, dec guard.Decision) {
	if d == nil || (dec.Allowed() && !d.IncludeAllowed) {
		return
	}
	rec := otellog.Record{}
	rec.SetTimestamp(d.now().UTC())
	rec.SetEventName("orgscope.guard.decision")
	rec.SetBody(otellog.StringValue(dec.String()))
	switch {
	case dec.Allowed():
		rec.SetSeverity(otellog.SeverityDebug)
	case dec.Outcome == guard.OutcomeLoading:
		rec.SetSeverity(otellog.SeverityInfo)
	case dec.Retryable():
		rec.SetSeverity(otellog.SeverityWarn)
	default:
		rec.SetSeverity(otellog.SeverityInfo)
	}
	rec.AddAttributes(
		otellog.String("stage", dec.Stage.String()),
		otellog.String("outcome", dec.Outcome.String()),
	)
	if dec.Reason != guard.ReasonNone {
		rec.AddAttributes(otellog.String("reason", string(dec.Reason)))
	}
	if dec.Redirect != "" {
		rec.AddAttributes(otellog.String("redirect", dec.Redirect))
	}
	if dec.Err != nil {
		rec.AddAttributes(otellog.String("error", dec.Err.Error()))
	}
	d.logger.Emit(ctx, rec)
}
