package context_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	fcontext "github.com/finnctl/finnctl/pkg/context"
)

func TestWithRunID_Generates(t *testing.T) {
	ctx := fcontext.WithRunID(context.Background(), "")

	id, ok := fcontext.RunID(ctx)
	if !ok {
		t.Fatal("expected run id to be present")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected a UUID, got %q: %v", id, err)
	}
}

func TestWithRunID_Explicit(t *testing.T) {
	ctx := fcontext.WithRunID(context.Background(), "run-1")
	if id, _ := fcontext.RunID(ctx); id != "run-1" {
		t.Errorf("expected run-1, got %s", id)
	}
}

func TestRunID_Missing(t *testing.T) {
	if _, ok := fcontext.RunID(context.Background()); ok {
		t.Error("expected no run id on a bare context")
	}
}

func TestCommand(t *testing.T) {
	ctx := fcontext.WithCommand(context.Background(), "execute")
	if name, ok := fcontext.Command(ctx); !ok || name != "execute" {
		t.Errorf("expected execute, got %q", name)
	}
	if _, ok := fcontext.Command(context.Background()); ok {
		t.Error("expected no command on a bare context")
	}
}

func TestCommandAndRunIDAreIndependent(t *testing.T) {
	ctx := fcontext.WithCommand(context.Background(), "execute")
	ctx = fcontext.WithRunID(ctx, "run-1")

	if name, _ := fcontext.Command(ctx); name != "execute" {
		t.Errorf("expected command execute, got %q", name)
	}
	if id, _ := fcontext.RunID(ctx); id != "run-1" {
		t.Errorf("expected run id run-1, got %q", id)
	}
}
