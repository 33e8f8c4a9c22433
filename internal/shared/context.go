package shared

import (
	"context"

	"github.com/google/uuid"
)

// Tenant carries the tenant scope and acting user for one core operation.
// It is always passed as an explicit value, never read from ambient state,
// so services stay testable without a fake HTTP request.
type Tenant struct {
	TenantID uuid.UUID
	ActorID  uuid.UUID
}

// Valid reports whether the tenant scope is usable.
func (t Tenant) Valid() bool {
	return t.TenantID != uuid.Nil
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant scope in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant scope from context.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.Valid()
}
