package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Require authenticates the request and checks that the caller holds role.
func Require(logger *slog.Logger, validator APIKeyValidator, role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := extractAPIKey(r)
		if apiKey == "" {
			writeDenied(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
			return
		}

		identity, ok := validator.Validate(r.Context(), apiKey)
		if !ok {
			if logger != nil {
				logger.WarnContext(r.Context(), "authentication failed",
					slog.String("request_id", observability.RequestIDFromContext(r.Context())),
					slog.String("path", r.URL.Path),
				)
			}
			writeDenied(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		if !identity.HasRole(role) {
			writeDenied(w, r, http.StatusForbidden, "FORBIDDEN", "role "+role+" is required")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}

func writeDenied(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.RequestIDFromContext(r.Context()),
	})
}
