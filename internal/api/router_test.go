package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/internal/api"
	mw "github.com/kiranshivaraju/vidresolve/internal/api/middleware"
	"github.com/kiranshivaraju/vidresolve/internal/cache"
	"github.com/kiranshivaraju/vidresolve/internal/store"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub store that returns empty results (all auth fails) ---

type stubStore struct {
	keys []*models.APIKey
}

func (s *stubStore) Ping(_ context.Context) error {
	return nil
}
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error {
	return nil
}
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error {
	return nil
}
func (s *stubStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error {
	return nil
}
func (s *stubStore) CreateJobs(_ context.Context, _ []*models.Job) error {
	return nil
}
func (s *stubStore) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) ListJobsByRequest(_ context.Context, _ uuid.UUID) ([]*models.Job, error) {
	return nil, nil
}
func (s *stubStore) ListFormats(_ context.Context, _ uuid.UUID) ([]*models.Format, error) {
	return nil, nil
}
func (s *stubStore) UpdateJobStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.JobUpdateOption) error {
	return nil
}
func (s *stubStore) ResetFailedJobs(_ context.Context, _ []uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
func (s *stubStore) ClaimJob(_ context.Context, _ uuid.UUID, _ time.Duration) error {
	return nil
}
func (s *stubStore) CompleteJob(_ context.Context, _ uuid.UUID, _ store.JobResult) error {
	return nil
}
func (s *stubStore) MarkJobFailed(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}
func (c *stubCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
func (c *stubCache) Ping(_ context.Context) error {
	return nil
}
func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubStore{}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/jobs"},
		{"GET", "/api/v1/jobs/" + uuid.NewString()},
		{"GET", "/api/v1/jobs/" + uuid.NewString() + "/status"},
		{"PUT", "/api/v1/jobs/" + uuid.NewString() + "/cancel"},
		{"POST", "/api/v1/jobs/retry"},
		{"GET", "/api/v1/requests/" + uuid.NewString() + "/jobs"},
		{"POST", "/api/v1/events"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SetsRequestID(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubStore{}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chimw.GetReqID(r.Context())))
		},
	})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Body.String())
}

func TestRouter_MetricsPublic(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubStore{}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("# metrics"))
		}),
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestRouter_ScopeEnforced(t *testing.T) {
	rawKey := "vr_routertestkey0123456789"
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	st := &stubStore{keys: []*models.APIKey{{
		ID:        uuid.New(),
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{models.ScopeJobs},
	}}}

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"POST", "/api/v1/jobs", http.StatusNotImplemented},
		{"GET", "/api/v1/admin/keys", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+rawKey)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

// Verify unused interfaces are satisfied
var _ store.Store = (*stubStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
