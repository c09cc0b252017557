package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/vidresolve/internal/extractor/mock"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- NewMockExtractor ---

func TestNewMockExtractor_Name(t *testing.T) {
	e := mock.NewMockExtractor()
	assert.Equal(t, "mock", e.Name())
}

func TestNewMockExtractor_Extract(t *testing.T) {
	e := mock.NewMockExtractor()
	info, err := e.Extract(context.Background(), "https://www.youtube.com/watch?v=mock")

	require.NoError(t, err)
	assert.Equal(t, "Mock video", info.Title)
	assert.Len(t, info.Formats, 3)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=mock"}, e.Calls)
}

func TestMockExtractor_NilFuncReturnsEmptyInfo(t *testing.T) {
	e := &mock.MockExtractor{Name_: "bare"}
	info, err := e.Extract(context.Background(), "u")

	require.NoError(t, err)
	assert.Empty(t, info.Formats)
}

// --- NewFailingExtractor ---

func TestNewFailingExtractor(t *testing.T) {
	e := mock.NewFailingExtractor(models.ErrExtractionFailed)
	assert.Equal(t, "mock-failing", e.Name())

	_, err := e.Extract(context.Background(), "u")
	assert.ErrorIs(t, err, models.ErrExtractionFailed)
}

func TestNewFailingExtractor_CustomError(t *testing.T) {
	custom := errors.New("sign in to confirm you're not a bot")
	e := mock.NewFailingExtractor(custom)

	_, err := e.Extract(context.Background(), "u")
	assert.Equal(t, custom, err)
}

// --- NewTimeoutExtractor ---

func TestNewTimeoutExtractor(t *testing.T) {
	e := mock.NewTimeoutExtractor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Extract(ctx, "u")
	assert.ErrorIs(t, err, models.ErrExtractorTimeout)
}

// --- Sentinel errors ---

func TestSentinelErrors_Distinct(t *testing.T) {
	assert.NotEqual(t, models.ErrExtractionFailed, models.ErrExtractorUnavailable)
	assert.NotEqual(t, models.ErrExtractorUnavailable, models.ErrExtractorTimeout)
}
