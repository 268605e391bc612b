package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sambigeara/sadb/pkg/types"
)

const (
	instrumentationName = "github.com/sambigeara/sadb/pkg/lifecycle"
	transitionsCounter  = "sadb.lifecycle.transitions"
)

type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	defaults       types.Defaults
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithDefaults sets the field defaults applied on create.
func WithDefaults(d types.Defaults) Option {
	return func(o *options) { o.defaults = d }
}

type telemetry struct {
	tracer      trace.Tracer
	transitions metric.Int64Counter
	ft          types.FrameType
}

func newTelemetry(ft types.FrameType, o options) (*telemetry, error) {
	mp, tp := o.meterProvider, o.tracerProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	counter, err := mp.Meter(instrumentationName).Int64Counter(transitionsCounter,
		metric.WithDescription("Security association lifecycle operations by outcome."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	return &telemetry{tracer: tp.Tracer(instrumentationName), transitions: counter, ft: ft}, nil
}

// begin opens a span for op and returns the func that closes it and counts
// the outcome.
func (t *telemetry) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "lifecycle."+op,
		trace.WithAttributes(append(attrs, attribute.String("frame_type", t.ft.String()))...),
	)
	return ctx, func(err error) {
		kind := KindOf(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
		}
		span.End()

		t.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("frame_type", t.ft.String()),
			attribute.String("op", op),
			attribute.String("result", string(kind)),
		))
	}
}

func idAttrs(scid, spi uint16) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("scid", int(scid)),
		attribute.Int("spi", int(spi)),
	}
}
