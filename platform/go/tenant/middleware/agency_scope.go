package middleware

import (
	"net/http"

	"github.com/google/uuid"

	platformauth "github.com/lumacare/backoffice/platform/go/auth"
	"github.com/lumacare/backoffice/platform/go/tenant"
)

// WithAgencyScope resolves the agency from verified claims and attaches
// tenant.Scope to the context. Requests without an agency claim are rejected
// before any domain handler runs.
func WithAgencyScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil || creds.AgencyID == "" {
				http.Error(w, "agency required", http.StatusUnauthorized)
				return
			}

			agencyID, err := uuid.Parse(creds.AgencyID)
			if err != nil {
				http.Error(w, "invalid agency id", http.StatusUnauthorized)
				return
			}

			ctx := tenant.WithScope(r.Context(), tenant.Scope{
				AgencyID: agencyID,
				UserID:   creds.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
