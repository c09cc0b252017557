package formats

import (
	"encoding/json"
	"testing"

	"github.com/kiranshivaraju/vidresolve/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string {
	return &s
}
func intp(i int) *int {
	return &i
}
func i64(i int64) *int64 {
	return &i
}
func f64(f float64) *float64 {
	return &f
}

// --- Partition ---

func TestPartition(t *testing.T) {
	tests := []struct {
		name       string
		input      models.RawFormat
		wantVideo  bool
		wantAudio  bool
		resolution string
	}{
		{
			name:       "video with dimensions",
			input:      models.RawFormat{FormatID: "137", VCodec: str("avc1"), ACodec: str("none"), Width: intp(1920), Height: intp(1080)},
			wantVideo:  true,
			resolution: "1920x1080",
		},
		{
			name:       "muxed video counts as video",
			input:      models.RawFormat{FormatID: "18", VCodec: str("avc1"), ACodec: str("mp4a"), Width: intp(640), Height: intp(360)},
			wantVideo:  true,
			resolution: "640x360",
		},
		{
			name:       "video missing height",
			input:      models.RawFormat{FormatID: "x", VCodec: str("vp9"), Width: intp(1280)},
			wantVideo:  true,
			resolution: models.UnknownResolution,
		},
		{
			name:       "video with zero width",
			input:      models.RawFormat{FormatID: "y", VCodec: str("vp9"), Width: intp(0), Height: intp(720)},
			wantVideo:  true,
			resolution: models.UnknownResolution,
		},
		{
			name:      "audio only",
			input:     models.RawFormat{FormatID: "140", VCodec: str("none"), ACodec: str("mp4a.40.2")},
			wantAudio: true,
		},
		{
			name:      "audio with absent video codec",
			input:     models.RawFormat{FormatID: "251", ACodec: str("opus")},
			wantAudio: true,
		},
		{
			name:  "storyboard dropped",
			input: models.RawFormat{FormatID: "sb0", VCodec: str("none"), ACodec: str("none")},
		},
		{
			name:  "no codecs dropped",
			input: models.RawFormat{FormatID: "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, audio := Partition([]models.RawFormat{tt.input})
			if tt.wantVideo {
				require.Len(t, video, 1)
				assert.Equal(t, tt.input.FormatID, video[0].FormatID)
				assert.Equal(t, tt.resolution, video[0].Resolution)
			} else {
				assert.Empty(t, video)
			}
			if tt.wantAudio {
				require.Len(t, audio, 1)
				assert.Equal(t, tt.input.FormatID, audio[0].FormatID)
			} else {
				assert.Empty(t, audio)
			}
		})
	}
}

func TestPartition_PreservesOrderAndDuplicates(t *testing.T) {
	raw := []models.RawFormat{
		{FormatID: "a1", ACodec: str("opus")},
		{FormatID: "v1", VCodec: str("avc1")},
		{FormatID: "a1", ACodec: str("opus")},
		{FormatID: "v2", VCodec: str("vp9")},
	}

	video, audio := Partition(raw)

	require.Len(t, video, 2)
	assert.Equal(t, "v1", video[0].FormatID)
	assert.Equal(t, "v2", video[1].FormatID)
	require.Len(t, audio, 2)
	assert.Equal(t, "a1", audio[0].FormatID)
	assert.Equal(t, "a1", audio[1].FormatID)
}

func TestPartition_EmptyInputNeverNil(t *testing.T) {
	video, audio := Partition(nil)
	assert.NotNil(t, video)
	assert.NotNil(t, audio)
	assert.Empty(t, video)
	assert.Empty(t, audio)
}

func TestPartition_KeepsFilesizeInBytes(t *testing.T) {
	video, _ := Partition([]models.RawFormat{{FormatID: "137", VCodec: str("avc1"), Filesize: i64(10485760)}})
	require.Len(t, video, 1)
	require.NotNil(t, video[0].Filesize)
	assert.Equal(t, int64(10485760), *video[0].Filesize)
}

// --- Normalize ---

func TestNormalize_KeepsEveryRecord(t *testing.T) {
	raw := []models.RawFormat{
		{FormatID: "sb0", VCodec: str("none"), ACodec: str("none"), Ext: "mhtml"},
		{FormatID: "137", VCodec: str("avc1"), Ext: "mp4"},
		{FormatID: "140", ACodec: str("mp4a.40.2"), Ext: "m4a"},
	}

	out := Normalize(raw)

	require.Len(t, out, 3)
	assert.Equal(t, models.FormatKindUnknown, out[0].Kind())
	assert.Equal(t, models.FormatKindVideo, out[1].Kind())
	assert.Equal(t, models.FormatKindAudio, out[2].Kind())
	assert.Equal(t, "mhtml", out[0].Ext)
}

func TestNormalize_Fields(t *testing.T) {
	raw := models.RawFormat{
		FormatID:   "137",
		URL:        "https://cdn.example.com/137",
		Ext:        "mp4",
		VCodec:     str("avc1.640028"),
		ACodec:     str("none"),
		Width:      intp(1920),
		Height:     intp(1080),
		Filesize:   i64(10485760),
		TBR:        f64(4400.5),
		Language:   str("en"),
		FormatNote: str("1080p"),
	}

	out := Normalize([]models.RawFormat{raw})
	require.Len(t, out, 1)
	f := out[0]

	assert.Equal(t, "137", f.FormatID)
	assert.Equal(t, "https://cdn.example.com/137", f.URL)
	require.NotNil(t, f.Resolution)
	assert.Equal(t, "1920x1080", *f.Resolution)
	require.NotNil(t, f.Filesize)
	assert.Equal(t, 10.0, *f.Filesize)
	require.NotNil(t, f.TBR)
	assert.Equal(t, "4400.5", *f.TBR)
	assert.Equal(t, "en", *f.Language)
	assert.Equal(t, "1080p", *f.FormatNote)
}

func TestNormalize_MissingValuesBecomeNil(t *testing.T) {
	out := Normalize([]models.RawFormat{
		{FormatID: "a", Width: intp(0), Height: intp(720), Filesize: i64(0), TBR: f64(0)},
		{FormatID: "b"},
	})

	for _, f := range out {
		assert.Nil(t, f.Resolution, f.FormatID)
		assert.Nil(t, f.Filesize, f.FormatID)
		assert.Nil(t, f.TBR, f.FormatID)
	}
}

func TestMegabytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes *int64
		want  *float64
	}{
		{"nil", nil, nil},
		{"zero", i64(0), nil},
		{"exactly ten MB", i64(10485760), f64(10.0)},
		{"rounds to two decimals", i64(1234567), f64(1.18)},
		{"small file", i64(1024), f64(0.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Megabytes(tt.bytes)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestBitrate_Formatting(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{128, "128.0"},
		{129.5, "129.5"},
		{4400.512, "4400.512"},
		{0.1, "0.1"},
		{-3, "-3.0"},
		{1e16, "1e+16"},
		{0.00005, "5e-05"},
	}
	for _, tt := range tests {
		got := bitrate(f64(tt.in))
		require.NotNil(t, got, tt.want)
		assert.Equal(t, tt.want, *got)
	}
}

// --- BuildPayload ---

func TestBuildPayload(t *testing.T) {
	info := &models.RawInfo{
		Title:     "Never Gonna Give You Up",
		Thumbnail: str("https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg"),
		Formats: []models.RawFormat{
			{FormatID: "137", VCodec: str("avc1"), Width: intp(1920), Height: intp(1080), Ext: "mp4"},
			{FormatID: "140", VCodec: str("none"), ACodec: str("mp4a"), Ext: "m4a"},
		},
	}

	data, err := BuildPayload(info)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Never Gonna Give You Up", doc["title"])
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg", doc["thumbnail_url"])
	assert.Len(t, doc["formats_mp4"], 1)
	assert.Len(t, doc["formats_mp3"], 1)
}

func TestBuildPayload_NoFormats(t *testing.T) {
	data, err := BuildPayload(&models.RawInfo{Title: "empty"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"empty","formats_mp4":[],"formats_mp3":[],"thumbnail_url":null}`, string(data))
}
