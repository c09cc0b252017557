package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type (
	apiKeyIDKey  struct{}
	keyPrefixKey struct{}
	scopesKey    struct{}
)

func SetAPIKeyID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, apiKeyIDKey{}, id)
}

// GetAPIKeyID returns the id of the key that authenticated the request.
func GetAPIKeyID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(apiKeyIDKey{}).(uuid.UUID)
	return id, ok
}

// WithKeyPrefix sets the prefix the rate limiter counts against. Authenticate
// sets it for real requests.
func WithKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey{}, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey{}).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey{}, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(scopesKey{}).([]string)
	return scopes
}
