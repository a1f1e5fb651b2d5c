package tracing

import (
	"context"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCUnaryInterceptor creates a gRPC unary interceptor for tracing
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		ctx, span := tracer.StartSpan(incomingParent(ctx), info.FullMethod,
			WithSpanKind(SpanKindServer),
			WithAttributes(rpcAttributes(info.FullMethod)),
		)
		defer endOnPanic(span)

		resp, err = handler(ctx, req)
		finishRPC(span, err)
		return resp, err
	}
}

// GRPCStreamInterceptor creates a gRPC stream interceptor for tracing
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		attrs := rpcAttributes(info.FullMethod)
		attrs["rpc.streaming"] = true

		ctx, span := tracer.StartSpan(incomingParent(ss.Context()), info.FullMethod,
			WithSpanKind(SpanKindServer),
			WithAttributes(attrs),
		)
		defer endOnPanic(span)

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		finishRPC(span, err)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with tracing context
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// GRPCClientInterceptor creates a gRPC client interceptor for trace propagation
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, span := tracer.StartSpan(ctx, method,
			WithSpanKind(SpanKindClient),
			WithAttributes(rpcAttributes(method)),
		)
		defer endOnPanic(span)

		md, _ := metadata.FromOutgoingContext(ctx)
		md = md.Copy()
		Inject(span.SpanContext(), MetadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		finishRPC(span, err)
		return err
	}
}

func incomingParent(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	if parent, ok := Extract(MetadataCarrier(md)); ok {
		return ContextWithRemoteSpanContext(ctx, parent)
	}
	return ctx
}

func rpcAttributes(method string) map[string]any {
	return map[string]any{
		"rpc.system": "grpc",
		"rpc.method": method,
	}
}

func finishRPC(span *Span, err error) {
	code := status.Code(err)
	span.SetAttribute("rpc.grpc.status_code", int(code))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
	} else {
		span.SetStatus(StatusOK, "")
	}
	span.End()
}

func endOnPanic(span *Span) {
	if r := recover(); r != nil {
		span.recordPanic(r, debug.Stack())
		span.SetStatus(StatusError, panicMessage(r))
		span.End()
		panic(r)
	}
}
