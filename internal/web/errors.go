package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request ID, then
// rendered for the client as a core.UserMessage: an alert fragment for
// partial requests, a JSON body for API clients, or the full page with the
// alert for plain browser requests.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/csvreorder/csvreorder/internal/core"
	"github.com/csvreorder/csvreorder/internal/web/templates"
)

var (
	errNoFile         = errors.New("no file provided")
	errInvalidRequest = errors.New("invalid request")
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyOrHeaderlessFile), errors.Is(err, core.ErrParseFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrIndexOutOfRange), errors.Is(err, errInvalidRequest), errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoFileLoaded), errors.Is(err, core.ErrNoRows):
		return http.StatusConflict
	case errors.Is(err, core.ErrHandleRevoked):
		return http.StatusGone
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyParses), errors.Is(err, core.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error server-side and returns a
// user-friendly response based on the request type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if !core.IsUserFacing(err) || statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"user_message", core.FormatUserError(err),
		"request_id", middleware.GetReqID(r.Context()),
	)

	switch {
	case isHTMX(r):
		s.renderErrorPartial(w, r, userMsg, statusCode)
	case wantsJSON(r):
		respondErrorJSON(w, userMsg, statusCode)
	default:
		s.respondErrorPage(w, r, userMsg, statusCode)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorPage renders the caller's page with the error in place of the
// session's own.
func (s *Server) respondErrorPage(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	snap := s.snapshotWithError(r, msg)
	renderPage(w, r, snap, statusCode)
}

// renderErrorPartial renders the workspace fragment with the error alert on
// top, or the bare alert when the caller has no session.
func (s *Server) renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)

	component := templates.ErrorAlert(alertView(msg))
	if _, ok := sessionCookie(r); ok {
		component = templates.Workspace(workspaceView(s.snapshotWithError(r, msg)))
	}
	if err := component.Render(r.Context(), w); err != nil {
		slog.Error("render error partial", "error", err)
	}
}

// snapshotWithError returns the caller's snapshot, or an empty one, carrying
// msg as its error.
func (s *Server) snapshotWithError(r *http.Request, msg core.UserMessage) core.Snapshot {
	var snap core.Snapshot
	if id, ok := sessionCookie(r); ok {
		snap, _ = s.service.Snapshot(id)
	}
	snap.Error = &msg
	return snap
}

// isHTMX checks if the request asks for a fragment.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// isFormPost reports whether the request is a plain browser form submission.
func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "multipart/form-data") ||
		strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}

	// API routes default to JSON unless a browser form posted to them.
	return strings.HasPrefix(r.URL.Path, "/api/") && !isFormPost(r)
}
