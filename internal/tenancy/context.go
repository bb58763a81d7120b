package tenancy

import (
	"context"
	"errors"
)

type ctxKey string

const (
	orgKey   ctxKey = "managerclin.org_id"
	actorKey ctxKey = "managerclin.actor_id"
)

// SystemActor stamps writes made by background jobs rather than a person.
const SystemActor = "system"

// ErrMissingScope is returned when a request context carries no tenant.
var ErrMissingScope = errors.New("tenancy: missing org id in context")

// Scope is the tenant and acting user a request runs on behalf of.
type Scope struct {
	OrgID   string
	ActorID string
}

// WithOrgID stores the org id in context.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgKey, orgID)
}

// OrgIDFromContext extracts the org id if present.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(orgKey)
	if val == nil {
		return "", false
	}
	orgID, ok := val.(string)
	return orgID, ok && orgID != ""
}

// WithActorID stores the acting user id in context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorIDFromContext extracts the actor id if present.
func ActorIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return "", false
	}
	actorID, ok := val.(string)
	return actorID, ok && actorID != ""
}

// WithScope stores both the org and actor ids.
func WithScope(ctx context.Context, scope Scope) context.Context {
	ctx = WithOrgID(ctx, scope.OrgID)
	if scope.ActorID != "" {
		ctx = WithActorID(ctx, scope.ActorID)
	}
	return ctx
}

// ScopeFromContext returns the request scope. The org id is mandatory; a
// missing actor falls back to SystemActor so audit columns are never empty.
func ScopeFromContext(ctx context.Context) (Scope, error) {
	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		return Scope{}, ErrMissingScope
	}
	actorID, ok := ActorIDFromContext(ctx)
	if !ok {
		actorID = SystemActor
	}
	return Scope{OrgID: orgID, ActorID: actorID}, nil
}
