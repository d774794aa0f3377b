// Package telemetry provides logging, tracing, metrics and resource events
// for rbkit.
//
// Structured logging uses zerolog, tracing uses OpenTelemetry (stdout or
// OTLP/gRPC exporters) and metrics are Prometheus collectors held in a
// private registry. Events are delivered to in-process subscribers.
//
// Initialize telemetry at startup and carry it in the context:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Resources call RecordProviderOperation around every data provider call,
// which opens a span, times the call and counts failures by error code.
// Without telemetry in the context the call is made directly and logging
// goes to a discarding logger.
//
// Events
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Resource)
//	}, telemetry.FilterByType(telemetry.EventTypeResourceDirty))
//
// DirtyListener adapts the publisher to a resource listener so changes to a
// resource surface as resource.dirty events.
package telemetry
