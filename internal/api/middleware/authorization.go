package middleware

import (
	"context"
	"net/http"
	"strings"

	iternal_jwt "github.com/ThomasGodWeb/WorkBot/internal/jwt"
)

type contextKey string

const operatorKey contextKey = "operator"

// ValidateJWTMiddleware rejects requests without a valid token for role and
// stores the token's user id in the request context.
func ValidateJWTMiddleware(issuer *iternal_jwt.Issuer, role iternal_jwt.Role) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.ParseToken(tokenString, role)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), operatorKey, claims.UserID)))
		}
	}
}

func ValidateOperatorJWT(issuer *iternal_jwt.Issuer) Middleware {
	return ValidateJWTMiddleware(issuer, iternal_jwt.RoleOperator)
}

// ExtractToken reads a bearer token, falling back to the token query
// parameter that browsers must use for websocket upgrades.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return r.URL.Query().Get("token")
}

func OperatorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(operatorKey).(int64)
	return id, ok && id > 0
}
