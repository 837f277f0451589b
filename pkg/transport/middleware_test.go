package transport

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

func noop(context.Context) (any, error) { return nil, nil }

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Invoker) Invoker {
			return InvokerFunc(func(ctx context.Context, op string, fn OpFunc) (any, error) {
				order = append(order, name+":before")
				result, err := next.Invoke(ctx, op, fn)
				order = append(order, name+":after")
				return result, err
			})
		}
	}

	chain := Chain(mw("first"), mw("second"), mw("third"))
	wrapped := chain(Direct)

	wrapped.Invoke(context.Background(), "op", func(context.Context) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})

	expected := []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}

	if len(order) != len(expected) {
		t.Fatalf("execution order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, got := range order {
		if got != expected[i] {
			t.Errorf("order[%d] = %q, want %q", i, got, expected[i])
		}
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	wrapped := Recovery()(Direct)
	result, err := wrapped.Invoke(context.Background(), "stop sandbox", func(context.Context) (any, error) {
		panic("test panic")
	})

	if err == nil {
		t.Fatal("expected error after panic, got nil")
	}
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}

	apiErr, ok := err.(*api.Error)
	if !ok {
		t.Fatalf("expected *api.Error, got %T: %v", err, err)
	}
	if apiErr.Type != api.ErrorTypeInternal {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeInternal)
	}
	if !strings.Contains(apiErr.Message, "test panic") {
		t.Errorf("error message = %q, should contain %q", apiErr.Message, "test panic")
	}
}

func TestRecoveryPassesThroughNormalExecution(t *testing.T) {
	wrapped := Recovery()(Direct)
	result, err := wrapped.Invoke(context.Background(), "op", func(context.Context) (any, error) {
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %v, want 42", result)
	}
}

func TestRequestIDGeneratesNewID(t *testing.T) {
	var capturedID string

	wrapped := RequestID()(Direct)
	wrapped.Invoke(context.Background(), "op", func(ctx context.Context) (any, error) {
		capturedID = RequestIDFromContext(ctx)
		return nil, nil
	})

	if capturedID == "" {
		t.Error("expected a generated request ID, got empty string")
	}
	if len(capturedID) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("request ID length = %d, want 32 (hex encoded)", len(capturedID))
	}
}

func TestRequestIDPropagatesExisting(t *testing.T) {
	var capturedID string

	ctx := ContextWithRequestID(context.Background(), "existing-id-123")
	wrapped := RequestID()(Direct)
	wrapped.Invoke(ctx, "op", func(ctx context.Context) (any, error) {
		capturedID = RequestIDFromContext(ctx)
		return nil, nil
	})

	if capturedID != "existing-id-123" {
		t.Errorf("request ID = %q, want %q", capturedID, "existing-id-123")
	}
}

func TestRequestIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)

	wrapped := RequestID()(Direct)
	for i := 0; i < 100; i++ {
		wrapped.Invoke(context.Background(), "op", func(ctx context.Context) (any, error) {
			ids[RequestIDFromContext(ctx)] = true
			return nil, nil
		})
	}

	if len(ids) != 100 {
		t.Errorf("expected 100 unique IDs, got %d", len(ids))
	}
}

func TestLoggingEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := ContextWithRequestID(context.Background(), "req-log-test")
	wrapped := Logging(logger)(Direct)
	wrapped.Invoke(ctx, "get_snapshot", noop)

	output := buf.String()
	for _, expected := range []string{"request_id=req-log-test", "op=get_snapshot", "operation completed"} {
		if !strings.Contains(output, expected) {
			t.Errorf("log output missing %q in:\n%s", expected, output)
		}
	}
}

func TestLoggingEmitsErrorOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{"not found is a warning", api.NewNotFoundError("op", "no sandbox found"), "level=WARN"},
		{"provider failure is an error", api.NewProviderError("op", nil), "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			wrapped := Logging(logger)(Direct)
			wrapped.Invoke(context.Background(), "op", func(context.Context) (any, error) {
				return nil, tt.err
			})

			output := buf.String()
			for _, expected := range []string{"operation failed", tt.wantLevel, "error_type="} {
				if !strings.Contains(output, expected) {
					t.Errorf("log output missing %q in:\n%s", expected, output)
				}
			}
		})
	}
}
