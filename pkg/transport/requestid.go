package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// RequestID returns middleware that assigns a unique request ID to each
// operation. If the context already carries a request ID (set by the HTTP
// adapter from the X-Request-ID header), that value is used. Otherwise, a
// new unique ID is generated.
//
// The request ID is stored in the context and can be retrieved with
// RequestIDFromContext.
func RequestID() Middleware {
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, op string, fn OpFunc) (any, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Invoke(ctx, op, fn)
		})
	}
}

// NewRequestID creates a new unique request ID as a hex string.
func NewRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
