package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FormatKindVideo   = "video"
	FormatKindAudio   = "audio"
	FormatKindUnknown = "unknown"

	// UnknownResolution marks a video format whose width or height the
	// extractor did not report.
	UnknownResolution = "unknown"
)

// Format is one normalized row of the formats table. Filesize is megabytes
// rounded to two decimals; TBR is the stringified total bitrate.
type Format struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	FormatID   string    `db:"format_id"   json:"format_id"`
	JobID      uuid.UUID `db:"job_id"      json:"job_id"`
	Ext        string    `db:"ext"         json:"ext"`
	Resolution *string   `db:"resolution"  json:"resolution"`
	ACodec     *string   `db:"acodec"      json:"acodec"`
	VCodec     *string   `db:"vcodec"      json:"vcodec"`
	Filesize   *float64  `db:"filesize"    json:"filesize"`
	TBR        *string   `db:"tbr"         json:"tbr"`
	URL        string    `db:"url"         json:"url"`
	Language   *string   `db:"language"    json:"language"`
	FormatNote *string   `db:"format_note" json:"format_note"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// Kind classifies the format by its codec tags. A video codec wins over an
// audio codec; "none" counts as absent.
func (f *Format) Kind() string {
	switch {
	case HasCodec(f.VCodec):
		return FormatKindVideo
	case HasCodec(f.ACodec):
		return FormatKindAudio
	default:
		return FormatKindUnknown
	}
}

// HasCodec reports whether a codec tag is present and not "none".
func HasCodec(codec *string) bool {
	return codec != nil && *codec != "" && *codec != "none"
}

// VideoFormat is a video-capable entry of the job JSON payload.
type VideoFormat struct {
	URL        string `json:"url"`
	Ext        string `json:"ext"`
	Filesize   *int64 `json:"filesize"`
	FormatID   string `json:"format_id"`
	Resolution string `json:"resolution"`
}

// AudioFormat is an audio-only entry of the job JSON payload.
type AudioFormat struct {
	URL      string `json:"url"`
	Ext      string `json:"ext"`
	Filesize *int64 `json:"filesize"`
	FormatID string `json:"format_id"`
}

// JobPayload is the document stored in jobs.json once a job is resolved.
type JobPayload struct {
	Title        string        `json:"title"`
	VideoFormats []VideoFormat `json:"formats_mp4"`
	AudioFormats []AudioFormat `json:"formats_mp3"`
	ThumbnailURL *string       `json:"thumbnail_url"`
}
