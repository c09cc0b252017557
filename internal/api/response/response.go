// Package response writes the JSON envelopes shared by every intake endpoint:
// {"data": ...} on success and {"error": {code, message, details}} otherwise.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Stable error codes returned in the error envelope.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeQueueUnavailable  = "QUEUE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

type envelope struct {
	Data any `json:"data"`
}

type listEnvelope struct {
	Data any      `json:"data"`
	Meta ListMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ListMeta accompanies unpaginated list responses such as the jobs of one
// request.
type ListMeta struct {
	Count int `json:"count"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Accepted is used when jobs were queued but not yet resolved.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func List(w http.ResponseWriter, data any, count int) {
	writeJSON(w, http.StatusOK, listEnvelope{Data: data, Meta: ListMeta{Count: count}})
}

// Raw writes an already encoded envelope, e.g. a cached job detail.
func Raw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// Wrap encodes data in the success envelope without writing it, so it can be
// cached and later replayed with Raw.
func Wrap(data any) ([]byte, error) {
	return json.Marshal(envelope{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Invalid writes a 400 with per-field validation messages.
func Invalid(w http.ResponseWriter, fields map[string]string) {
	Error(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request", fields)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "status", status, "error", err)
	}
}
