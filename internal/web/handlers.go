package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/csvreorder/csvreorder/internal/core"
	"github.com/csvreorder/csvreorder/internal/web/templates"
)

const (
	// SessionCookieName identifies the caller's session.
	SessionCookieName = "csvreorder_session"

	// multipartOverhead is the allowance for form boundaries and part
	// headers on top of the file size limit.
	multipartOverhead = 64 << 10

	// maxReorderBody caps the body of a reorder request.
	maxReorderBody = 4 << 10
)

// stateResponse is the JSON form of a session snapshot.
type stateResponse struct {
	core.Snapshot
	DownloadURL string `json:"download_url,omitempty"`
}

// reorderRequest is the JSON body of POST /api/reorder.
type reorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// handleIndex renders the page for the caller's session, opening one if
// needed.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, err := s.ensureSession(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	snap, err := s.service.Snapshot(id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	renderPage(w, r, snap, http.StatusOK)
}

// handleHealth reports liveness plus session and parse slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.service.SessionCount(),
		"parses":   s.service.LimiterStatus(),
	})
}

// handleLoad streams the uploaded file into the session's parser. The body
// is never buffered whole.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)

	id, err := s.ensureSession(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	part, err := filePart(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer part.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	snap, err := s.service.Load(ctx, id, part.FileName(), part)
	s.respondOutcome(w, r, snap, err)
}

// filePart advances to the "file" part of a multipart body.
func filePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected a multipart form: %w", errInvalidRequest, err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, core.ErrFileTooLarge
			}
			return nil, fmt.Errorf("%w: %w", errInvalidRequest, err)
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// handleReorder moves one column. Accepts {"from":n,"to":m} or form fields.
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	id, err := s.currentSession(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReorderBody)
	from, to, err := parseReorder(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	snap, err := s.service.Reorder(ctx, id, from, to)
	s.respondOutcome(w, r, snap, err)
}

// parseReorder reads the source and destination indices.
func parseReorder(r *http.Request) (int, int, error) {
	if !isFormPost(r) {
		var req reorderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return 0, 0, fmt.Errorf("%w: malformed JSON body: %w", errInvalidRequest, err)
		}
		if req.From == nil || req.To == nil {
			return 0, 0, fmt.Errorf("%w: from and to are required", errInvalidRequest)
		}
		return *req.From, *req.To, nil
	}

	from, err := strconv.Atoi(r.FormValue("from"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: from must be an integer", errInvalidRequest)
	}
	to, err := strconv.Atoi(r.FormValue("to"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: to must be an integer", errInvalidRequest)
	}
	return from, to, nil
}

// handleExport builds a new download for the session.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := s.currentSession(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	_, exportErr := s.service.Export(ctx, id)

	snap, err := s.service.Snapshot(id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	s.respondOutcome(w, r, snap, exportErr)
}

// handleState returns the session snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id, err := s.currentSession(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	snap, err := s.service.Snapshot(id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	s.respondSnapshot(w, r, snap, http.StatusOK)
}

// handleEndSession closes the session and clears the cookie.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.currentSession(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.End(ctx, id); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Session.CookieSecure,
	})

	if !isHTMX(r) && wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondSnapshot(w, r, core.Snapshot{State: core.StateEmpty}, http.StatusOK)
}

// handleDownload serves the bytes behind a live export handle.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := s.currentSession(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	exp, err := s.service.Download(ctx, id, chi.URLParam(r, "handleID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": exp.Filename})
	if disposition == "" {
		disposition = `attachment; filename="` + core.ExportPrefix + core.DefaultFilename + `"`
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(exp.Size()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(exp.Data); err != nil {
		slog.Warn("download write failed", "handle", exp.ID, "error", err)
	}
}

// sessionCookie returns the session id carried by the request, if any.
func sessionCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// currentSession returns the caller's live session id.
func (s *Server) currentSession(r *http.Request) (string, error) {
	id, ok := sessionCookie(r)
	if !ok {
		return "", core.ErrSessionNotFound
	}
	if _, err := s.service.Session(id); err != nil {
		return "", err
	}
	return id, nil
}

// ensureSession returns the caller's live session id, opening a new session
// and setting its cookie when the caller has none.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, err := s.currentSession(r); err == nil {
		return id, nil
	}

	sess, err := s.service.Open(WithRequestMetadata(r.Context(), r))
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Session.CookieSecure,
	})
	// Later handlers in this request read the new session from the cookie.
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.ID()})
	return sess.ID(), nil
}

// respondOutcome answers a state transition. Failures the session recorded
// are rendered as part of the workspace. Anything else goes through
// respondError.
func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, snap core.Snapshot, err error) {
	if err == nil {
		s.respondSnapshot(w, r, snap, http.StatusOK)
		return
	}

	status := statusFor(err)
	if !core.IsRecoverable(err) || snap.Error == nil || (!isHTMX(r) && wantsJSON(r)) {
		s.respondError(w, r, err, status)
		return
	}

	slog.Warn("request rejected",
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
		"code", snap.Error.Code,
	)
	s.respondSnapshot(w, r, snap, status)
}

// respondSnapshot renders snap in the form the client asked for. Plain form
// posts are redirected to the page so a reload does not resubmit them.
func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, snap core.Snapshot, status int) {
	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := templates.Workspace(workspaceView(snap)).Render(r.Context(), w); err != nil {
			slog.Error("render workspace", "error", err)
		}
	case wantsJSON(r):
		resp := stateResponse{Snapshot: snap}
		if snap.Export != nil {
			resp.DownloadURL = downloadURL(snap.Export.ID)
		}
		writeJSON(w, status, resp)
	case r.Method == http.MethodGet:
		renderPage(w, r, snap, status)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// renderPage writes the full document.
func renderPage(w http.ResponseWriter, r *http.Request, snap core.Snapshot, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Page(pageView(snap)).Render(r.Context(), w); err != nil {
		slog.Error("render page", "error", err)
	}
}
