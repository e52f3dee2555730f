package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		token  string
		found  bool
	}{
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"Bearer   abc123  ", "abc123", true},
		{"Basic abc123", "", false},
		{"", "", false},
		{"Bearer", "", false},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}

		token, found := ExtractBearerToken(r)
		require.Equal(t, tc.found, found, "header %q", tc.header)
		if tc.found {
			require.Equal(t, tc.token, token)
		}
	}
}

func TestHS256VerifierRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	verify := HS256Verifier(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"sub":      "user-1",
		"email":    "carer@example.com",
		"agencyId": "9f1c9a76-5ba0-4b26-9e5c-8efb72f7d06b",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	claims, err := verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "carer@example.com", claims["email"])
}

func TestHS256VerifierRejectsBadTokens(t *testing.T) {
	t.Parallel()

	verify := HS256Verifier([]byte("test-secret"))

	// Wrong secret.
	token := signToken(t, []byte("other-secret"), jwt.MapClaims{"sub": "user-1"})
	_, err := verify(context.Background(), token)
	require.Error(t, err)

	// Expired.
	token = signToken(t, []byte("test-secret"), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = verify(context.Background(), token)
	require.Error(t, err)

	// Garbage.
	_, err = verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
}

func TestDefaultCredentialExtractor(t *testing.T) {
	t.Parallel()

	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"sub":      "user-1",
		"email":    "carer@example.com",
		"name":     "Cora Carer",
		"isAdmin":  true,
		"agencyId": "9f1c9a76-5ba0-4b26-9e5c-8efb72f7d06b",
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", creds.ID)
	require.Equal(t, "carer@example.com", creds.Email)
	require.True(t, creds.IsAdmin)
	require.Equal(t, "9f1c9a76-5ba0-4b26-9e5c-8efb72f7d06b", creds.AgencyID)

	_, err = DefaultCredentialExtractor(map[string]interface{}{"email": "x@y.z"})
	require.Error(t, err, "sub claim is mandatory")
}

func TestBearerMiddleware(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	middleware := Bearer(HS256Verifier(secret), DefaultCredentialExtractor)

	var gotCreds *UserCredentials
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCreds, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token passes", func(t *testing.T) {
		token := signToken(t, secret, jwt.MapClaims{
			"sub":      "user-1",
			"agencyId": "9f1c9a76-5ba0-4b26-9e5c-8efb72f7d06b",
			"exp":      time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotCreds)
		require.Equal(t, "user-1", gotCreds.ID)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("preflight passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	middleware := RequireAdmin()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{ID: "user-1", IsAdmin: true}))
	rec := httptest.NewRecorder()
	middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{ID: "user-2"}))
	rec = httptest.NewRecorder()
	middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
