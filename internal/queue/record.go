// Package queue delivers batches of job ids to the resolver, either from a
// Redis stream consumer group or from an SQS-style event document.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// FieldJobID is the stream entry field that carries the job id.
const FieldJobID = "job_id"

// Record is one queued message. Body is the opaque job identifier.
type Record struct {
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

// BatchResult summarises a handled batch. StatusCode is always 200: per-job
// failures are recorded on the job, never reported back to the broker.
type BatchResult struct {
	StatusCode int `json:"statusCode"`
	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// NewBatchResult returns an empty successful result.
func NewBatchResult() BatchResult {
	return BatchResult{StatusCode: http.StatusOK}
}

// BatchHandler processes a batch of records sequentially.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []Record) BatchResult
}

// Event is the SQS-style envelope accepted by the HTTP event endpoint.
type Event struct {
	Records []Record `json:"Records"`
}

var ErrInvalidEvent = errors.New("invalid queue event")

// ParseEvent decodes an SQS-style event document. The Records key must match
// exactly; an event without it, or with a null value, is rejected. An empty
// array is valid.
func ParseEvent(data []byte) ([]Record, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	raw, ok := doc["Records"]
	if !ok || string(raw) == "null" {
		return nil, fmt.Errorf("%w: missing Records", ErrInvalidEvent)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: Records: %v", ErrInvalidEvent, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
