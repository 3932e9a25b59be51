package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/quozen/internal/storage"
)

var tracer = otel.Tracer("github.com/mmynk/quozen/internal/middleware")

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// and wraps it in a server span. Install it inside RequireAuth so the caller
// is known.
//
// Expected failures (missing rows, conflicts, bad input) log at Warn with the
// storage error kind; anything else logs at Error.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure
			userID := GetUserID(ctx)

			ctx, span := tracer.Start(ctx, procedure,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("rpc.user_id", userID)),
			)
			defer span.End()

			resp, err := next(ctx, req)

			logger := logger
			if sc := span.SpanContext(); sc.IsValid() {
				logger = logger.With("trace_id", sc.TraceID().String())
			}

			duration := time.Since(start).Milliseconds()
			if err == nil {
				logger.Info("RPC ok",
					"procedure", procedure,
					"user_id", userID,
					"duration_ms", duration,
				)
				return resp, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			var connectErr *connect.Error
			if errors.As(err, &connectErr) && connectErr.Code() != connect.CodeInternal {
				logger.Warn("RPC error",
					"procedure", procedure,
					"code", connectErr.Code(),
					"kind", storage.KindOf(err),
					"error", connectErr.Message(),
					"user_id", userID,
					"duration_ms", duration,
				)
			} else {
				logger.Error("RPC error",
					"procedure", procedure,
					"error", err,
					"user_id", userID,
					"duration_ms", duration,
				)
			}
			return resp, err
		}
	}
}
