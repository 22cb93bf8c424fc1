package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/journal"
	"github.com/roach88/opline/internal/pipeline"
	"github.com/roach88/opline/internal/service"
)

const instrumentationName = "github.com/roach88/opline/internal/telemetry"

// Attribute keys set on operation spans.
const (
	AttrService   = attribute.Key("opline.service")
	AttrOperation = attribute.Key("opline.operation")
	AttrArgs      = attribute.Key("opline.args")
	AttrFlow      = attribute.Key("opline.flow")
	AttrSerial    = attribute.Key("opline.serial")
)

type options struct {
	provider trace.TracerProvider
}

// Option configures the tracing middleware.
type Option func(*options)

// WithTracerProvider sets the provider spans are created from.
// Default: the global provider at the time of the call.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.provider = tp
	}
}

// Middleware opens one span per call of op, named after the operation
// reference. A returned error is recorded on the span and marks it failed.
func Middleware(op ir.OperationRef, serial bool, opts ...Option) pipeline.Middleware {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, args pipeline.Args, next pipeline.Next) (any, error) {
		tp := o.provider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		attrs := []attribute.KeyValue{
			AttrService.String(op.Service()),
			AttrOperation.String(op.Operation()),
			AttrArgs.Int(len(args)),
			AttrSerial.Bool(serial),
		}
		if flow := journal.FlowFromContext(ctx); flow != "" {
			attrs = append(attrs, AttrFlow.String(flow))
		}

		ctx, span := tp.Tracer(instrumentationName).Start(ctx, string(op), trace.WithAttributes(attrs...))
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		span.SetStatus(codes.Ok, "")
		return result, nil
	}
}

// Attach installs the tracing middleware on every operation of b.
func Attach(b *service.Base, opts ...Option) error {
	mw := make(map[string]pipeline.Middleware, len(b.Operations()))
	for _, d := range b.Descriptors() {
		mw[d.Name] = Middleware(ir.NewOperationRef(b.Name(), d.Name), d.Serial, opts...)
	}
	return b.Use(mw)
}
