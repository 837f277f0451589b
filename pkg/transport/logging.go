package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

// Logging returns middleware that emits a structured log entry for each
// operation with its name, request ID, duration and, on failure, the error
// type. Not-found and invalid-state outcomes are logged at warn level since
// they are caller-visible conditions rather than faults.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, op string, fn OpFunc) (any, error) {
			start := time.Now()

			result, err := next.Invoke(ctx, op, fn)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("op", op),
				slog.Duration("duration", time.Since(start)),
			}

			if err == nil {
				logger.LogAttrs(ctx, slog.LevelInfo, "operation completed", attrs...)
				return result, nil
			}

			level := slog.LevelError
			if apiErr, ok := api.AsError(err); ok {
				attrs = append(attrs, slog.String("error_type", string(apiErr.Type)))
				if apiErr.Type == api.ErrorTypeNotFound || apiErr.Type == api.ErrorTypeInvalidState ||
					apiErr.Type == api.ErrorTypeInvalidRequest {
					level = slog.LevelWarn
				}
			}
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(ctx, level, "operation failed", attrs...)
			return result, err
		})
	}
}
