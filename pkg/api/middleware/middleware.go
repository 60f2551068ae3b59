package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	authproviders "github.com/openvtt/battlemap/pkg/auth/providers"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/types"
)

type ContextKey int

const (
	// ActorContextKey is the key used to store the actor in the request context
	ActorContextKey ContextKey = iota
)

// NewAuthMiddleware verifies the bearer token and resolves it to an
// actor (user ID plus role) stored in the request context. Requests
// without a valid session are rejected with 401 before any state change.
func NewAuthMiddleware(authProvider authproviders.AuthProvider, repository repositories.Repository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearerToken, err := parseBearerToken(r)
			if err != nil {
				log.Debug("failed to parse bearer token: %v", err)
				http.Error(w, "failed to parse bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := authProvider.VerifyToken(r.Context(), bearerToken)
			if err != nil {
				log.Debug("failed to verify token: %v", err)
				http.Error(w, "failed to verify token", http.StatusUnauthorized)
				return
			}

			user, err := repository.GetOrCreateUser(r.Context(), claims.UID)
			if err != nil {
				log.Error("failed to resolve user: %v", err)
				http.Error(w, "failed to resolve user", http.StatusInternalServerError)
				return
			}

			actor := types.Actor{UserID: user.ID, Role: user.Role}
			ctx := context.WithValue(r.Context(), ActorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the actor stored by the auth middleware.
func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(types.Actor)
	return actor, ok
}

// parseBearerToken parses the bearer token from the Authorization header
func parseBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	return parts[1], nil
}
