package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	internaljwt "lead-routing-backend/internal/jwt"
)

type contextKey string

const agentIDKey contextKey = "agentId"

// AgentID returns the authenticated agent id stored by the JWT
// middleware, or "" for unauthenticated requests.
func AgentID(r *http.Request) string {
	id, _ := r.Context().Value(agentIDKey).(string)
	return id
}

func ValidateJWTMiddleware(role internaljwt.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := internaljwt.ParseToken(tokenString, role)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			expires, ok := claims["exp"].(float64)
			if !ok || time.Now().Unix() > int64(expires) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			if id, ok := claims["id"].(string); ok {
				r = r.WithContext(context.WithValue(r.Context(), agentIDKey, id))
			}

			next(w, r)
		}
	}
}

var ValidateAgentJWT = ValidateJWTMiddleware(internaljwt.RoleAgent)
