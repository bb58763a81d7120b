package tenancy

import (
	"context"
	"errors"
	"testing"
)

func TestWithOrgIDAndOrgIDFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithOrgID(ctx, "org-123")

	got, ok := OrgIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected org id to be present")
	}
	if got != "org-123" {
		t.Fatalf("expected org-123, got %s", got)
	}
}

func TestOrgIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := OrgIDFromContext(ctx); ok {
		t.Fatalf("expected missing org id to return false")
	}

	ctx = context.WithValue(ctx, orgKey, 42)
	if _, ok := OrgIDFromContext(ctx); ok {
		t.Fatalf("expected non-string org id to return false")
	}

	ctx = WithOrgID(context.Background(), "")
	if _, ok := OrgIDFromContext(ctx); ok {
		t.Fatalf("expected empty org id to return false")
	}
}

func TestScopeFromContext(t *testing.T) {
	ctx := WithScope(context.Background(), Scope{OrgID: "org-1", ActorID: "user-9"})
	scope, err := ScopeFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope.OrgID != "org-1" || scope.ActorID != "user-9" {
		t.Fatalf("unexpected scope %+v", scope)
	}
}

func TestScopeFromContext_DefaultsActor(t *testing.T) {
	scope, err := ScopeFromContext(WithOrgID(context.Background(), "org-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope.ActorID != SystemActor {
		t.Fatalf("expected system actor, got %q", scope.ActorID)
	}
}

func TestScopeFromContext_MissingOrg(t *testing.T) {
	_, err := ScopeFromContext(WithActorID(context.Background(), "user-1"))
	if !errors.Is(err, ErrMissingScope) {
		t.Fatalf("expected ErrMissingScope, got %v", err)
	}
}
