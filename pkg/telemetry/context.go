package telemetry

import (
	"context"

	"github.com/openfroyo/rbkit/pkg/engine"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer, metrics and event publisher.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if ctx == nil {
		return nil
	}
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the event publisher and the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// RecordProviderOperation runs fn as a provider call made on behalf of a
// resource, wrapping it in a span and recording call metrics when telemetry
// is present in ctx. The error returned by fn is passed back unchanged.
func RecordProviderOperation(ctx context.Context, resourceName, path, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	logger := FromContext(ctx).WithResource(resourceName, path).WithOperation(operation)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartResourceSpan(ctx, resourceName, path, operation)
		defer span.End()
	}

	timer := NewTimer()
	logger.Debug("delegating to data provider")

	err := fn(ctx)

	if tel != nil {
		tel.Metrics.RecordProviderCall(resourceName, operation, timer.Duration())
		if err != nil {
			tel.Metrics.RecordProviderError(resourceName, operation)
			if code := engine.CodeOf(err); code != "" {
				tel.Metrics.RecordError(string(code))
				span.SetAttributes(AttrErrorCode.String(string(code)))
			}
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	if err != nil {
		logger.WithError(err).Debug("data provider call failed")
	}

	return err
}
