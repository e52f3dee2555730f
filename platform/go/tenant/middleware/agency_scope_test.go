package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/lumacare/backoffice/platform/go/auth"
	"github.com/lumacare/backoffice/platform/go/tenant"
)

func TestWithAgencyScope(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	middleware := WithAgencyScope()

	var gotScope tenant.Scope
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotScope, gotOK = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid agency claim", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{
			ID:       "user-1",
			AgencyID: agencyID.String(),
		}))

		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, gotOK)
		require.Equal(t, agencyID, gotScope.AgencyID)
		require.Equal(t, "user-1", gotScope.UserID)
	})

	t.Run("missing credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing agency claim", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{ID: "user-1"}))
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed agency claim", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{
			ID:       "user-1",
			AgencyID: "not-a-uuid",
		}))
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
