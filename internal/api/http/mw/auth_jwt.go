package mw

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"subgraphx/internal/security"
)

// Key for claims in ctx
type claimsCtxKey struct{}

type JWTMiddleware struct {
	verifier *security.RS256Verifier
}

func NewJWTMiddleware(v *security.RS256Verifier) *JWTMiddleware {
	if v == nil {
		panic("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{verifier: v}
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claimsAny, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		rc, ok := claimsAny.(*jwt.RegisteredClaims)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsCtxKey{}, rc.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
