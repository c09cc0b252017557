// Package formats turns the extractor's raw format records into the shapes
// the worker persists: a video/audio partition for the job JSON payload and a
// normalized list for the formats table.
package formats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

const bytesPerMegabyte = 1024 * 1024

// Partition splits raw formats into video-capable and audio-only entries.
// A record with a video codec is video even when it also carries audio.
// Records with neither codec are dropped. Input order is preserved.
// Both returned slices are non-nil.
func Partition(raw []models.RawFormat) ([]models.VideoFormat, []models.AudioFormat) {
	video := []models.VideoFormat{}
	audio := []models.AudioFormat{}

	for _, f := range raw {
		switch {
		case models.HasCodec(f.VCodec):
			res := models.UnknownResolution
			if r := resolution(f.Width, f.Height); r != nil {
				res = *r
			}
			video = append(video, models.VideoFormat{
				URL:        f.URL,
				Ext:        f.Ext,
				Filesize:   f.Filesize,
				FormatID:   f.FormatID,
				Resolution: res,
			})
		case models.HasCodec(f.ACodec):
			audio = append(audio, models.AudioFormat{
				URL:      f.URL,
				Ext:      f.Ext,
				Filesize: f.Filesize,
				FormatID: f.FormatID,
			})
		}
	}

	return video, audio
}

// Normalize converts every raw format into a formats-table row. Filesize is
// reported in megabytes rounded to two decimals and the bitrate is kept as
// text. Zero or missing values become nil. Rows are not yet bound to a job.
func Normalize(raw []models.RawFormat) []*models.Format {
	out := make([]*models.Format, 0, len(raw))
	for _, f := range raw {
		out = append(out, &models.Format{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: resolution(f.Width, f.Height),
			ACodec:     f.ACodec,
			VCodec:     f.VCodec,
			Filesize:   Megabytes(f.Filesize),
			TBR:        bitrate(f.TBR),
			URL:        f.URL,
			Language:   f.Language,
			FormatNote: f.FormatNote,
		})
	}
	return out
}

// BuildPayload assembles the JSON document stored on the job row.
func BuildPayload(info *models.RawInfo) (json.RawMessage, error) {
	video, audio := Partition(info.Formats)
	payload := models.JobPayload{
		Title:        info.Title,
		VideoFormats: video,
		AudioFormats: audio,
		ThumbnailURL: info.Thumbnail,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return data, nil
}

// Megabytes converts a byte count to MB rounded to two decimals.
// nil and zero both yield nil.
func Megabytes(bytes *int64) *float64 {
	if bytes == nil || *bytes == 0 {
		return nil
	}
	mb := math.Round(float64(*bytes)/bytesPerMegabyte*100) / 100
	return &mb
}

func resolution(width, height *int) *string {
	if width == nil || height == nil || *width == 0 || *height == 0 {
		return nil
	}
	r := fmt.Sprintf("%dx%d", *width, *height)
	return &r
}

// bitrate renders tbr the way rows written by earlier workers store it:
// shortest round-trip digits, always with a fractional part ("128.0"), and
// exponent form outside [1e-4, 1e16).
func bitrate(tbr *float64) *string {
	if tbr == nil || *tbr == 0 {
		return nil
	}
	v := *tbr
	if abs := math.Abs(v); abs < 1e-4 || abs >= 1e16 {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		return &s
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return &s
}
