package tracing

import (
	"context"
	"runtime/debug"
)

// WithSpan runs fn inside a child span of ctx. A returned error marks the
// span as failed, records one exception event and is returned unchanged.
// A panic is recorded the same way and then re-raised.
func WithSpan[T any](ctx context.Context, tracer *Tracer, name string, fn func(context.Context) (T, error), opts ...StartOption) (result T, err error) {
	ctx, span := tracer.StartSpan(ctx, name, opts...)

	defer func() {
		if r := recover(); r != nil {
			span.recordPanic(r, debug.Stack())
			span.SetStatus(StatusError, panicMessage(r))
			span.End()
			panic(r)
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
	} else {
		span.SetStatus(StatusOK, "")
	}
	span.End()
	return result, err
}

// Do is WithSpan for functions without a result value.
func Do(ctx context.Context, tracer *Tracer, name string, fn func(context.Context) error, opts ...StartOption) error {
	_, err := WithSpan(ctx, tracer, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

func panicMessage(r any) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return "panic"
	}
}
