package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/staff-portal/internal/constants"
	"github.com/kozaktomas/staff-portal/internal/login"
)

const (
	errInvalidRequestBody = "invalid request body"
	errInvalidForm        = "invalid multipart form"

	maxImageSize = constants.MaxImageSize
	maxFormSize  = constants.MaxFormSize
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a login outcome to an HTTP status. The body only ever
// carries the public message.
func statusFor(reason login.Reason) int {
	switch reason {
	case login.ReasonOK:
		return http.StatusOK
	case login.ReasonBlocked:
		return http.StatusForbidden
	case login.ReasonBusy, login.ReasonCancelled:
		return http.StatusConflict
	case login.ReasonCameraError:
		return http.StatusBadRequest
	case login.ReasonModelLoadError, login.ReasonServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// readFormFile reads an uploaded file up to maxImageSize bytes.
func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxImageSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", fh.Filename, maxImageSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", fh.Filename, maxImageSize)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
