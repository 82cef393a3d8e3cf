package web

// errors.go shapes error responses for the three kinds of caller this
// server has: htmx-driven page elements get an HTML fragment, API clients
// get JSON, and everything else gets plain text. All three carry the
// user-facing message and support code from core.MapError; the technical
// error is only logged.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/nem2sql/internal/core"
	"github.com/JonMunkholm/nem2sql/internal/logging"
	"github.com/JonMunkholm/nem2sql/internal/web/ui"
)

// ErrorResponse is the JSON error body for API clients. Error and Message
// carry the same text; Error exists for clients that only look at the
// conventional field.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err with its request ID and writes the mapped user
// message in the shape the client understands.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	)

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(statusCode)
		ui.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
	default:
		http.Error(w, msg.Message+" ("+msg.Code+")", statusCode)
	}
}

// isHTMX reports whether the request came from an htmx-boosted element.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client should receive JSON. API routes
// default to JSON even without an Accept header.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
