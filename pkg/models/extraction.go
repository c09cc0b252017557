// Package models contains shared data models used across the vidresolve codebase.
package models

import (
	"context"
	"errors"
)

// Extractor is the narrow interface to the extraction oracle. Never call
// yt-dlp or a sidecar directly; always inject this interface.
type Extractor interface {
	// Extract resolves a page URL into its title, thumbnail and raw formats.
	Extract(ctx context.Context, url string) (*RawInfo, error)
	// Name returns the provider identifier (e.g., "ytdlp", "remote").
	Name() string
}

// RawInfo is the subset of the extractor's info document the worker reads.
type RawInfo struct {
	Title     string      `json:"title"`
	Thumbnail *string     `json:"thumbnail"`
	Formats   []RawFormat `json:"formats"`
}

// RawFormat mirrors one entry of the extractor's "formats" array. Every field
// is optional on the wire.
type RawFormat struct {
	FormatID   string   `json:"format_id"`
	URL        string   `json:"url"`
	Ext        string   `json:"ext"`
	ACodec     *string  `json:"acodec"`
	VCodec     *string  `json:"vcodec"`
	Width      *int     `json:"width"`
	Height     *int     `json:"height"`
	Filesize   *int64   `json:"filesize"`
	TBR        *float64 `json:"tbr"`
	Language   *string  `json:"language"`
	FormatNote *string  `json:"format_note"`
}

// Sentinel errors returned by every Extractor implementation.
var (
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrExtractorUnavailable = errors.New("extractor unavailable")
	ErrExtractorTimeout     = errors.New("extractor timeout")
)
