package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details and the request ID (server-side)
//   - Mapped via core.MapError to a user-friendly message with a support code
//   - Returned as JSON for API calls and plain text for pages
//
// The HTTP status is derived from the error: fatal load errors are 422,
// sources that have not loaded yet are 503, bad parameters are 400.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/dashboard"
	"github.com/JonMunkholm/soedash/internal/geo"
	"github.com/JonMunkholm/soedash/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message with the status
// statusFor picks.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusFor(err, userMsg)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if wantsJSON(r) {
		respondErrorJSON(w, err, userMsg, status)
	} else {
		respondErrorHTML(w, err, status)
	}
}

// statusFor maps an error to an HTTP status.
func statusFor(err error, msg core.UserMessage) int {
	switch {
	case errors.Is(err, dashboard.ErrNotLoaded),
		errors.Is(err, dashboard.ErrServerBusy),
		errors.Is(err, geo.ErrUnavailable):
		return http.StatusServiceUnavailable
	case core.IsFatal(err):
		return http.StatusUnprocessableEntity
	}

	switch msg.Code {
	case "VAL001", "VAL002", "FILE002", "FILE003", "FILE005", "FILE006":
		return http.StatusUnprocessableEntity
	case "VAL003", "FILE004", "UPL004":
		return http.StatusBadRequest
	case "VAL004":
		return http.StatusNotFound
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "AUTH001", "AUTH002":
		return http.StatusUnauthorized
	case "RATE001":
		return http.StatusTooManyRequests
	case "UPL001":
		return http.StatusServiceUnavailable
	case "UPL003", "DB002":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondErrorJSON writes a JSON error response. Client errors carry the
// technical message, which names the offending file, columns or parameter;
// server errors only carry the mapped message.
func respondErrorJSON(w http.ResponseWriter, err error, msg core.UserMessage, status int) {
	detail := msg.Message
	if status < http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		detail = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   detail,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML writes a plain text error response.
func respondErrorHTML(w http.ResponseWriter, err error, status int) {
	http.Error(w, core.FormatUserError(err), status)
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// errInvalidPassword is mapped to the login form's error message.
var errInvalidPassword = errors.New("invalid password")
