package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/DGApex/CRT-INV/pkg/jwt"
	"github.com/DGApex/CRT-INV/pkg/response"
)

type contextKey string

const ClientIDKey contextKey = "clientID"

// APIKeyClientID is the client recorded for requests that present the
// shared key directly.
const APIKeyClientID = "api-key"

// KeyMatches compares a presented key with the shared access key in
// constant time.
func KeyMatches(presented, accessKey string) bool {
	if presented == "" || accessKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(accessKey)) == 1
}

// AuthMiddleware accepts either the shared key in X-API-Key or a bearer
// token minted from it.
func AuthMiddleware(accessKey, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get("X-API-Key"); key != "" {
				if !KeyMatches(key, accessKey) {
					response.Unauthorized(w, "Invalid API key")
					return
				}
				ctx := context.WithValue(r.Context(), ClientIDKey, APIKeyClientID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClientIDKey, claims.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetClientID(r *http.Request) string {
	clientID, ok := r.Context().Value(ClientIDKey).(string)
	if !ok {
		return ""
	}
	return clientID
}
