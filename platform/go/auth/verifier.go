package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Verifier returns a VerifyFunc validating tokens signed with a shared
// secret. Used in local and CI environments where the identity gateway is not
// deployed; production swaps in the gateway's own verifier.
func HS256Verifier(secret []byte) VerifyFunc {
	return func(ctx context.Context, tokenString string) (map[string]interface{}, error) {
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			return nil, err
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return nil, fmt.Errorf("invalid token claims")
		}

		return map[string]interface{}(claims), nil
	}
}
