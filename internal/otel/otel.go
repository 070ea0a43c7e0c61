package otel

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/reqid"
)

// Config selects where telemetry goes. With neither Endpoint nor Stdout set,
// no tracing is configured.
type Config struct {
	// Service is reported as service.name. Default: graphcall
	Service string
	// Endpoint is an OTLP/gRPC collector address (host:port).
	Endpoint string
	// Stdout, when set, receives spans as JSON.
	Stdout io.Writer
	// MetricReaders are attached to the meter provider.
	MetricReaders []sdkmetric.Reader
}

// Setup configures OpenTelemetry and attaches eventbus subscribers to bus.
// The returned function flushes and shuts everything down.
func Setup(ctx context.Context, bus *eventbus.Bus, cfg Config) (func(context.Context) error, error) {
	if cfg.Service == "" {
		cfg.Service = "graphcall"
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.Service))

	var tpOpts []sdktrace.TracerProviderOption
	if cfg.Endpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	if cfg.Stdout != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Stdout))
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithSyncer(exp))
	}
	if len(tpOpts) == 0 && len(cfg.MetricReaders) == 0 {
		return func(context.Context) error { return nil }, nil
	}
	tp := sdktrace.NewTracerProvider(append(tpOpts, sdktrace.WithResource(res))...)

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range cfg.MetricReaders {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)

	unsubscribe, err := Register(bus, tp.Tracer("graphcall"), mp.Meter("graphcall"))
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		unsubscribe()
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Register subscribes span and metric recording for call lifecycle events.
func Register(bus *eventbus.Bus, tracer trace.Tracer, meter metric.Meter) (unsubscribe func(), err error) {
	s := &subscriber{tracer: tracer}
	if s.calls, err = meter.Int64Counter("graphcall.calls",
		metric.WithDescription("Completed calls.")); err != nil {
		return nil, err
	}
	if s.cacheReads, err = meter.Int64Counter("graphcall.cache.reads",
		metric.WithDescription("Normalized cache lookups.")); err != nil {
		return nil, err
	}
	if s.transportMs, err = meter.Float64Histogram("graphcall.transport.duration_ms",
		metric.WithDescription("Transport exchange duration."),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return s.register(bus), nil
}

type subscriber struct {
	tracer         trace.Tracer
	callSpans      sync.Map // rid -> trace.Span
	transportSpans sync.Map // rid -> trace.Span
	grpcSpans      sync.Map // rid -> trace.Span

	calls       metric.Int64Counter
	cacheReads  metric.Int64Counter
	transportMs metric.Float64Histogram
}

func (s *subscriber) parent(ctx context.Context, rid string, maps ...*sync.Map) context.Context {
	for _, m := range maps {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	var subs []func()

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.CallStart) {
		rid, ok := reqid.FromContext(ctx)
		if !ok {
			return
		}
		_, span := s.tracer.Start(ctx, "graphcall.call")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.String("graphcall.cache_policy", e.CachePolicy),
			attribute.Bool("graphcall.async", e.Async),
		)
		s.callSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.CallFinish) {
		s.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", e.OperationName),
			attribute.Bool("from_cache", e.FromCache),
			attribute.Bool("error", e.Err != nil),
		))
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.callSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Bool("graphcall.from_cache", e.FromCache),
			attribute.Int("graphql.error_count", e.ErrorCount),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.CacheRead) {
		s.cacheReads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", e.OperationName),
			attribute.Bool("hit", e.Hit),
		))
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.callSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("cache.read", trace.WithAttributes(
				attribute.String("graphcall.cache_key", e.Key),
				attribute.Bool("graphcall.hit", e.Hit),
			))
		}
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.CacheWrite) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.callSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("cache.write", trace.WithAttributes(
				attribute.Int("graphcall.records", e.Records),
				attribute.Int("graphcall.changed", len(e.Changed)),
			))
		}
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.TransportStart) {
		rid, ok := reqid.FromContext(ctx)
		if !ok {
			return
		}
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.callSpans), "graphcall.transport",
			trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("server.address", e.Endpoint),
			attribute.String("graphcall.transport_cache_policy", e.CachePolicy),
		)
		s.transportSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.TransportFinish) {
		s.transportMs.Record(ctx, float64(e.Duration.Microseconds())/1000, metric.WithAttributes(
			attribute.String("operation", e.OperationName),
			attribute.Bool("from_cache", e.FromCache),
		))
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.transportSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Bool("graphcall.from_transport_cache", e.FromCache))
		if e.StatusCode != 0 {
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.StatusCode))
		}
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPClientFinish) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.transportSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("http.attempt", trace.WithAttributes(
				attribute.Int("http.attempt", e.Attempt),
				semconv.HTTPStatusCodeKey.Int(e.Status),
			))
		}
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.GRPCClientStart) {
		rid, ok := reqid.FromContext(ctx)
		if !ok {
			return
		}
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.transportSpans, &s.callSpans), "grpc.client")
		span.SetAttributes(
			semconv.RPCServiceKey.String(e.Service),
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
		)
		s.grpcSpans.Store(rid, span)
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.GRPCClientFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.grpcSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	}))

	subs = append(subs, eventbus.Subscribe(bus, func(ctx context.Context, e events.WatcherRefetch) {
		_, span := s.tracer.Start(ctx, "graphcall.watcher.refetch")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.StringSlice("graphcall.invalidated", e.Keys),
			attribute.String("graphcall.cache_policy", e.CachePolicy),
		)
		span.End()
	}))

	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
	}
}
