package r2r

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per capability group. Use errors.Is() to check.
var (
	ErrConnection = errors.New("r2r: connection failed")
	ErrService    = errors.New("r2r: service error")
	ErrIngestion  = errors.New("r2r: ingestion failed")
	ErrSearch     = errors.New("r2r: search failed")
	ErrCompletion = errors.New("r2r: rag completion failed")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error %d", e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

const maxDetailLen = 512

// parseAPIError builds an APIError from a response body.
// R2R reports failures as {"detail": ...}; proxies in front of it use "message" or "error".
func parseAPIError(status int, body []byte) *APIError {
	return &APIError{StatusCode: status, Detail: extractDetail(body)}
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if d := rawString(parsed.Detail); d != "" {
			return d
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetailLen {
		s = s[:maxDetailLen]
	}
	return s
}

// rawString unwraps a JSON string, or returns the compact JSON of anything else
// (FastAPI validation errors put a list of objects in "detail").
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
