// Package tenant carries the agency scope every request operates under. An
// agency is the isolation boundary: all reads and writes downstream are keyed
// by the agency id resolved here and never by client-supplied input.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Scope captures the resolved agency routing metadata for a request.
type Scope struct {
	AgencyID uuid.UUID
	UserID   string
}

type ctxKey string

const scopeKey ctxKey = "LUMACARE_AGENCY_SCOPE"

// WithScope returns a derived context carrying the agency Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext extracts the agency Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(scopeKey)
	if v == nil {
		return Scope{}, false
	}

	scope, ok := v.(Scope)
	return scope, ok
}
