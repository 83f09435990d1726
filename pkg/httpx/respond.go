package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20 // 1MB

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var ErrEmptyBody = errors.New("empty request body")

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func BadRequest(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadRequest, code, message)
}

func Unauthorized(w http.ResponseWriter) {
	RespondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
}

func NotFound(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusNotFound, code, message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

// Internal logs err and answers with a generic 500; err is never echoed back.
func Internal(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	if log == nil {
		log = slog.Default()
	}
	log.ErrorContext(r.Context(), msg, "err", err, "request_id", RequestIDFrom(r.Context()), "path", r.URL.Path)
	RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// DecodeJSON reads a single JSON value from the body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}
