package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/internal/api/response"
	"github.com/kiranshivaraju/vidresolve/internal/store"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefixLen = 8

	// lastUsedTimeout bounds the background last_used_at write.
	lastUsedTimeout = 5 * time.Second
)

// Auth resolves bearer API keys and enforces scopes on the intake API.
type Auth struct {
	store store.Store
}

func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate accepts "Authorization: Bearer vr_...". Candidate keys are
// looked up by their 8-character prefix and compared with bcrypt; revoked
// keys never match. On success the key id, prefix and scopes are stored in
// the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		if !wellFormedKey(rawKey) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:keyPrefixLen]
		candidates, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			slog.Error("api key lookup failed", "key_prefix", prefix, "error", err)
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternal, "Failed to validate API key", nil)
			return
		}

		key := matchKey(candidates, rawKey)
		if key == nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		ctx := SetAPIKeyID(r.Context(), key.ID)
		ctx = WithKeyPrefix(ctx, prefix)
		ctx = setScopes(ctx, key.Scopes)
		a.touch(r.Context(), key.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects requests whose key lacks scope with 403.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(getScopes(r), scope) {
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// touch records key usage without holding up the request.
func (a *Auth) touch(ctx context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastUsedTimeout)
	go func() {
		defer cancel()
		if err := a.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			slog.Warn("update api key last used failed", "key_id", id, "error", err)
		}
	}()
}

func matchKey(candidates []*models.APIKey, rawKey string) *models.APIKey {
	for _, key := range candidates {
		if key.Revoked() {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
			return key
		}
	}
	return nil
}

func wellFormedKey(raw string) bool {
	return len(raw) > keyPrefixLen && strings.HasPrefix(raw, RawKeyPrefix)
}

func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
