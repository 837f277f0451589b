package transport

import (
	"context"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

// OpFunc is one lifecycle call. The result is encoded as the response body.
type OpFunc func(ctx context.Context) (any, error)

// Invoker runs a named lifecycle operation. Middleware wraps an Invoker to
// observe or guard every operation the same way.
type Invoker interface {
	Invoke(ctx context.Context, op string, fn OpFunc) (any, error)
}

// InvokerFunc is an adapter that allows using an ordinary function as an
// Invoker.
type InvokerFunc func(ctx context.Context, op string, fn OpFunc) (any, error)

// Invoke calls f(ctx, op, fn).
func (f InvokerFunc) Invoke(ctx context.Context, op string, fn OpFunc) (any, error) {
	return f(ctx, op, fn)
}

// Direct runs the operation without any wrapping.
var Direct Invoker = InvokerFunc(func(ctx context.Context, _ string, fn OpFunc) (any, error) {
	return fn(ctx)
})

// SnapshotCache returns the current snapshot, refreshing it when stale.
type SnapshotCache interface {
	GetOrRefresh(ctx context.Context) (*api.Snapshot, error)
}

// SnapshotCreator produces a new snapshot, optionally from a running
// sandbox.
type SnapshotCreator interface {
	CreateSnapshot(ctx context.Context, existingSandboxID string) (*api.Snapshot, error)
}

// ExerciseService manages exercise sandboxes.
type ExerciseService interface {
	CreateOrConnect(ctx context.Context, exerciseID int64) (*api.ExerciseSandbox, error)
	Stop(ctx context.Context, exerciseID int64) (string, error)
}

// AgentService hands out agent sandboxes.
type AgentService interface {
	Acquire(ctx context.Context, previousSandboxID string) (*api.AgentSandbox, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
