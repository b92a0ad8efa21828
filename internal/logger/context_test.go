package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestTryFromContext(t *testing.T) {
	if _, ok := TryFromContext(context.Background()); ok {
		t.Error("bare context must report no logger")
	}

	l := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), l)
	got, ok := TryFromContext(ctx)
	if !ok || got != l {
		t.Errorf("got %v, ok = %v", got, ok)
	}
	if FromContext(ctx) != l {
		t.Error("FromContext must return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext must fall back to a nop logger, not nil")
	}
}
