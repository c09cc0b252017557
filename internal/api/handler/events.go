package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/vidresolve/internal/api/response"
	"github.com/kiranshivaraju/vidresolve/internal/queue"
)

const maxEventBytes = 1 << 20

// NewEventsHandler returns an http.HandlerFunc for POST /api/v1/events. It
// accepts an SQS-style batch and runs it through the same handler the stream
// consumer uses. Per-job failures never change the response status.
func NewEventsHandler(h queue.BatchHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Failed to read body", nil)
			return
		}
		if len(body) > maxEventBytes {
			response.Error(w, http.StatusRequestEntityTooLarge, response.CodeInvalidRequest, "Event body too large", nil)
			return
		}

		records, err := queue.ParseEvent(body)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			return
		}

		result := h.HandleBatch(r.Context(), records)
		slog.Info("event batch handled",
			"records", len(records),
			"processed", result.Processed,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
		response.JSON(w, result)
	}
}
