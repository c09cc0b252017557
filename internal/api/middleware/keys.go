package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// RawKeyPrefix starts every generated API key.
const RawKeyPrefix = "vr_"

// GenerateAPIKey creates a new key record and the raw secret to hand to the
// caller. Only the bcrypt hash of the secret is kept on the record.
func GenerateAPIKey(name string, scopes []string) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := RawKeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:keyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidScope reports whether scope is one the API understands.
func ValidScope(scope string) bool {
	return scope == models.ScopeJobs || scope == models.ScopeAdmin
}
