// Package httpx writes the canonical JSON envelopes spoken by the storefront
// API: {success, data} for results and {error, message, status} for failures.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Error is the JSON error envelope returned by the storefront.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError constructs an Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WriteError writes the structured error as JSON to the response writer.
func WriteError(w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteData writes a success envelope wrapping the payload.
func WriteData(w http.ResponseWriter, status int, data any) {
	if status == 0 {
		status = http.StatusOK
	}
	payload := map[string]any{
		"success": true,
		"data":    data,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
