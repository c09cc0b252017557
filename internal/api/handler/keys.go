package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/vidresolve/internal/api/middleware"
	"github.com/kiranshivaraju/vidresolve/internal/api/response"
	"github.com/kiranshivaraju/vidresolve/internal/store"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// CreatedKey is returned once when a key is created. Key is the raw secret
// and cannot be recovered later.
type CreatedKey struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"api_key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
func NewCreateKeyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string   `json:"name" validate:"required,max=100"`
			Scopes []string `json:"scopes" validate:"omitempty,dive,oneof=jobs admin"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if err := validate.Struct(req); err != nil {
			response.Invalid(w, validationErrorsToMap(err))
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{models.ScopeJobs}
		}

		raw, key, err := mw.GenerateAPIKey(req.Name, req.Scopes)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to generate key", nil)
			return
		}

		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "Key collision, try again", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to store key", nil)
			return
		}

		response.Created(w, CreatedKey{Key: raw, APIKey: key})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.ListAPIKeys(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to list keys", nil)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.List(w, keys, len(keys))
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "keyID must be a UUID", nil)
			return
		}

		if err := s.RevokeAPIKey(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "API key not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to revoke key", nil)
			return
		}

		response.NoContent(w)
	}
}
