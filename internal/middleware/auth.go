package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/vaultadmin/backend/internal/auth"
)

var redisClient *redis.Client

// InitAuthMiddleware wires the optional Redis client used for the session
// revocation denylist. Tokens are issued and revoked by the identity
// provider; this service only checks them.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

// AuthMiddleware resolves the caller identity and role from a bearer token
// and attaches them to the request context. Everything behind it consumes
// the resolved auth.Caller, never the token itself.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if redisClient != nil {
			revoked, err := redisClient.Exists(r.Context(), "denylist:"+token).Result()
			if err == nil && revoked > 0 {
				http.Error(w, "Token revoked", http.StatusUnauthorized)
				return
			}
		}

		caller, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

func validateToken(tokenString string) (auth.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return auth.Caller{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return auth.Caller{}, fmt.Errorf("unexpected claims type")
	}

	caller := auth.Caller{
		ID:   fmt.Sprintf("%v", claims["user_id"]),
		Role: auth.Role(fmt.Sprintf("%v", claims["role"])),
	}
	if caller.ID == "" || caller.ID == "<nil>" {
		return auth.Caller{}, fmt.Errorf("missing user_id claim")
	}
	if !auth.ValidRole(caller.Role) {
		return auth.Caller{}, fmt.Errorf("unknown role claim %q", caller.Role)
	}

	return caller, nil
}
