package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RolePatient = "PATIENT"
	RoleDoctor  = "DOCTOR"
	RoleAdmin   = "ADMIN"
)

const identityKey contextKey = "identity"

// Identity is the caller as asserted by an already verified bearer token.
// Token issuance happens outside this service.
type Identity struct {
	Subject string
	Role    string
}

type identityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// BearerIdentityMiddleware verifies HS256 bearer tokens and stores the caller
// identity in the request context.
func BearerIdentityMiddleware(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			var claims identityClaims
			_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			switch claims.Role {
			case RolePatient, RoleDoctor, RoleAdmin:
			default:
				writeError(w, http.StatusForbidden, "forbidden", "unknown role")
				return
			}
			if claims.Subject == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{Subject: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
