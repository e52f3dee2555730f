// Package auth carries the bearer-token middleware. Session issuance itself is
// an external collaborator; this package only verifies presented tokens through
// a pluggable VerifyFunc and exposes the resulting credentials on the context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ctxKey string

const ctxUserCredentials ctxKey = "LUMACARE_USER_CREDENTIALS"

// UserCredentials captures the verified identity attached to a request.
type UserCredentials struct {
	ID       string
	Email    string
	Name     string
	IsAdmin  bool
	AgencyID string
}

// UserFromContext extracts the verified credentials, if the request passed auth.
func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok
}

// WithUser attaches credentials to the context. Exposed for tests and internal tooling.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

// VerifyFunc validates the raw bearer token and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// ExtractFunc converts a claims map into UserCredentials.
type ExtractFunc func(claims map[string]interface{}) (*UserCredentials, error)

// Bearer parses the Authorization header and sets context credentials using the
// provided verify/extract functions. Preflight requests pass through untouched.
func Bearer(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.Bearer: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractBearerToken(r)
			if !found {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			creds, err := extract(claims)
			if err != nil {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// ExtractBearerToken pulls the token out of the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// DefaultCredentialExtractor maps the claim names used by the identity gateway
// onto UserCredentials. The agency claim is mandatory for tenant routing.
func DefaultCredentialExtractor(claims map[string]interface{}) (*UserCredentials, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("sub claim is required")
	}

	creds := &UserCredentials{ID: sub}
	if email, ok := claims["email"].(string); ok {
		creds.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		creds.Name = name
	}
	if isAdmin, ok := claims["isAdmin"].(bool); ok {
		creds.IsAdmin = isAdmin
	}
	if agencyID, ok := claims["agencyId"].(string); ok {
		creds.AgencyID = agencyID
	}

	return creds, nil
}

// RequireAdmin gates a route group behind the isAdmin claim.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			if !ok || !creds.IsAdmin {
				http.Error(w, "admin role required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
