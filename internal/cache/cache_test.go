package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second)
	require.NoError(t, err)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second)
	require.NoError(t, err)

	// Immediately should exist
	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	// Wait for TTL to expire
	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))

	err := rc.Delete(ctx, "del:key")
	require.NoError(t, err)

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_MultipleKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, rc.SetJobStatus(ctx, jobID, "finished-processing", 10*time.Second))
	require.NoError(t, rc.Set(ctx, cache.JobDetailKey(jobID), []byte(`{}`), 10*time.Second))

	require.NoError(t, rc.Delete(ctx, cache.JobKeys(jobID)...))

	_, found, err := rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = rc.Get(ctx, cache.JobDetailKey(jobID))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NoKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Delete(context.Background()))
}

func TestDelete_NonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	err := rc.Delete(context.Background(), "does:not:exist")
	assert.NoError(t, err)
}

// --- Job Status ---

func TestSetGetJobStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	err := rc.SetJobStatus(ctx, jobID, "processing", 10*time.Second)
	require.NoError(t, err)

	status, found, err := rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "processing", status)
}

func TestGetJobStatus_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	status, found, err := rc.GetJobStatus(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", status)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "vidresolve:ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "vidresolve:ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

func TestIncrWithExpiry_FixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "vidresolve:ratelimit:fixed:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)
	_, err = rc.IncrWithExpiry(ctx, key, time.Hour)
	require.NoError(t, err)

	ttl, err := rc.Client().TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 2*time.Second)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not-a-redis-url")
	assert.ErrorContains(t, err, "parse redis URL")
}

// --- Shared client ---

func TestClient_SharesConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "shared:key", []byte("v"), 10*time.Second))

	val, err := rc.Client().Get(ctx, "shared:key").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

// --- Cache Key Builders ---

func TestJobStatusKey(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := cache.JobStatusKey(jobID)
	assert.Equal(t, "vidresolve:job:22222222-2222-2222-2222-222222222222:status", key)
}

func TestJobDetailKey(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := cache.JobDetailKey(jobID)
	assert.Equal(t, "vidresolve:job:22222222-2222-2222-2222-222222222222:detail", key)
}

func TestRateLimitKey(t *testing.T) {
	key := cache.RateLimitKey("vr_abcd1234")
	assert.Equal(t, "vidresolve:ratelimit:vr_abcd1234", key)
}

func TestJobKeys(t *testing.T) {
	jobID := uuid.New()
	assert.Equal(t, []string{cache.JobStatusKey(jobID), cache.JobDetailKey(jobID)}, cache.JobKeys(jobID))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	jobID := uuid.New()

	keys := map[string]bool{
		cache.JobStatusKey(jobID):       true,
		cache.JobDetailKey(jobID):       true,
		cache.RateLimitKey("vr_prefix"): true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
