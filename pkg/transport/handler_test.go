package transport

import (
	"context"
	"errors"
	"testing"
)

func TestInvokerFuncAdapter(t *testing.T) {
	var gotOp string
	inv := InvokerFunc(func(ctx context.Context, op string, fn OpFunc) (any, error) {
		gotOp = op
		return fn(ctx)
	})

	// Verify it satisfies the interface.
	var _ Invoker = inv

	result, err := inv.Invoke(context.Background(), "get snapshot", func(context.Context) (any, error) {
		return "snap", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOp != "get snapshot" {
		t.Errorf("op = %q, want %q", gotOp, "get snapshot")
	}
	if result != "snap" {
		t.Errorf("result = %v, want %q", result, "snap")
	}
}

func TestDirectPropagatesErrors(t *testing.T) {
	want := errors.New("boom")
	_, err := Direct.Invoke(context.Background(), "op", func(context.Context) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
