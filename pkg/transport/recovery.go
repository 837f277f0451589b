package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

// Recovery returns middleware that catches panics in an operation and
// converts them to internal errors. The server continues to accept new
// requests after a panic is recovered.
func Recovery() Middleware {
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, op string, fn OpFunc) (result any, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in operation", "op", op, "panic", r, "stack", string(debug.Stack()))
					result = nil
					retErr = api.NewInternalError(op, fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Invoke(ctx, op, fn)
		})
	}
}
