package mock

import (
	"context"

	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// MockExtractor satisfies models.Extractor for testing.
type MockExtractor struct {
	Name_       string
	ExtractFunc func(ctx context.Context, url string) (*models.RawInfo, error)
	Calls       []string
}

func (m *MockExtractor) Name() string {
	return m.Name_
}

func (m *MockExtractor) Extract(ctx context.Context, url string) (*models.RawInfo, error) {
	m.Calls = append(m.Calls, url)
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, url)
	}
	return &models.RawInfo{}, nil
}

// NewMockExtractor returns a MockExtractor that resolves every URL to
// SampleInfo.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		Name_: "mock",
		ExtractFunc: func(_ context.Context, _ string) (*models.RawInfo, error) {
			return SampleInfo(), nil
		},
	}
}

// NewFailingExtractor returns a MockExtractor that always returns the given error.
func NewFailingExtractor(err error) *MockExtractor {
	return &MockExtractor{
		Name_: "mock-failing",
		ExtractFunc: func(_ context.Context, _ string) (*models.RawInfo, error) {
			return nil, err
		},
	}
}

// NewTimeoutExtractor returns a MockExtractor that blocks until context is cancelled.
func NewTimeoutExtractor() *MockExtractor {
	return &MockExtractor{
		Name_: "mock-timeout",
		ExtractFunc: func(ctx context.Context, _ string) (*models.RawInfo, error) {
			<-ctx.Done()
			return nil, models.ErrExtractorTimeout
		},
	}
}

// SampleInfo is a small info document with one video, one audio and one
// storyboard format.
func SampleInfo() *models.RawInfo {
	thumb := "https://i.ytimg.com/vi/mock/maxresdefault.jpg"
	return &models.RawInfo{
		Title:     "Mock video",
		Thumbnail: &thumb,
		Formats: []models.RawFormat{
			{FormatID: "137", Ext: "mp4", URL: "https://cdn.mock/137", VCodec: ptr("avc1.640028"), ACodec: ptr("none"), Width: intPtr(1920), Height: intPtr(1080), Filesize: int64Ptr(10485760), TBR: floatPtr(4400.5)},
			{FormatID: "140", Ext: "m4a", URL: "https://cdn.mock/140", VCodec: ptr("none"), ACodec: ptr("mp4a.40.2"), Filesize: int64Ptr(3433514), TBR: floatPtr(129.5), Language: ptr("en")},
			{FormatID: "sb0", Ext: "mhtml", URL: "https://cdn.mock/sb0", VCodec: ptr("none"), ACodec: ptr("none")},
		},
	}
}

func ptr(s string) *string {
	return &s
}
func intPtr(i int) *int {
	return &i
}
func int64Ptr(i int64) *int64 {
	return &i
}
func floatPtr(f float64) *float64 {
	return &f
}

// Compile-time check that MockExtractor implements Extractor.
var _ models.Extractor = (*MockExtractor)(nil)
