package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/observability"
)

const (
	tracerName           = "github.com/signalsfoundry/edgeview/internal/ingest"
	requestIDMetadataKey = "x-request-id"
)

// RequestIDUnaryServerInterceptor adopts the caller's x-request-id (or
// assigns one), echoes it in the response header and stores a logger tagged
// with it and the method on the context.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, id := requestScope(ctx, base, info.FullMethod)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, id))
		return handler(ctx, req)
	}
}

// RequestIDStreamServerInterceptor does the same for Watch streams.
func RequestIDStreamServerInterceptor(base logging.Logger) grpc.StreamServerInterceptor {
	base = logging.OrNoop(base)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, id := requestScope(ss.Context(), base, info.FullMethod)
		_ = ss.SetHeader(metadata.Pairs(requestIDMetadataKey, id))
		return handler(srv, &scopedStream{ServerStream: ss, ctx: ctx})
	}
}

func requestScope(ctx context.Context, base logging.Logger, method string) (context.Context, string) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(requestIDMetadataKey); len(ids) > 0 && ids[0] != "" {
			ctx = logging.ContextWithRequestID(ctx, ids[0])
		}
	}
	ctx, log := logging.WithRequestLogger(ctx, base.With(logging.String("method", method)))
	return logging.ContextWithLogger(ctx, log), logging.RequestIDFromContext(ctx)
}

type scopedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedStream) Context() context.Context { return s.ctx }

// TracingUnaryServerInterceptor names the RPC span "ingest.<Method>", tags it
// with the request id and, for Publish, the envelope's event type, and marks
// it failed when the handler returns an error. It starts a server span of its
// own only when no stats handler has done so.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		svc, method := observability.SplitMethod(info.FullMethod)
		name := "ingest." + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}

		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", svc),
			attribute.String("rpc.method", method),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if env, ok := req.(*structpb.Struct); ok {
			if kind := env.GetFields()["type"].GetStringValue(); kind != "" {
				span.SetAttributes(attribute.String("edgeview.event.kind", kind))
			}
		}

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Code(err).String())
		}
		return resp, err
	}
}
