package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/csvreorder/csvreorder/internal/audit"
	"github.com/csvreorder/csvreorder/internal/config"
	"github.com/csvreorder/csvreorder/internal/logging"
	"github.com/csvreorder/csvreorder/internal/tabular"
)

const tracerName = "github.com/csvreorder/csvreorder/internal/core"

// Service hosts one Session per browser and runs every transition through
// the parse limiter, tracing and the audit log.
type Service struct {
	parseOpts   tabular.ParseOptions
	writeOpts   tabular.WriteOptions
	idleTimeout time.Duration
	maxSessions int

	limiter  *ParseLimiter
	recorder audit.Recorder
	tracer   trace.Tracer
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option customizes a Service.
type Option func(*Service)

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithClock replaces time.Now for session activity tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service from configuration. A nil recorder disables
// auditing.
func NewService(cfg *config.Config, recorder audit.Recorder, opts ...Option) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}

	s := &Service{
		parseOpts: tabular.ParseOptions{
			MaxBytes:     cfg.Upload.MaxFileSize,
			SanitizeUTF8: cfg.Upload.SanitizeUTF8,
		},
		writeOpts:   tabular.WriteOptions{UseCRLF: cfg.Export.UseCRLF},
		idleTimeout: cfg.Session.IdleTimeout,
		maxSessions: cfg.Session.MaxSessions,
		limiter:     NewParseLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		recorder:    recorder,
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates an Empty session.
func (s *Service) Open(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, ErrTooManySessions
	}

	sess := newSession(uuid.NewString(), s.writeOpts, s.now)
	s.sessions[sess.ID()] = sess

	logging.FromContext(ctx).Debug("session opened", "session_id", sess.ID())
	return sess, nil
}

// Session looks up a live session.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// End closes a session, revoking its download handle, and forgets it.
func (s *Service) End(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.Close()
	s.record(ctx, audit.Event{Action: audit.ActionSessionEnd, SessionID: id})
	logging.FromContext(ctx).Info("session ended", "session_id", id)
	return nil
}

// Load parses r and installs the result in the session. The parse runs to
// completion before the session is touched, so a failure never exposes a
// partial file. A cancelled request leaves the session as it was.
func (s *Service) Load(ctx context.Context, id, filename string, r io.Reader) (Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "csvreorder.load", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("file.name", filename),
	))
	defer span.End()

	logger := logging.WithFields(ctx, "session_id", id, "file", filename)

	sess, err := s.Session(id)
	if err != nil {
		return Snapshot{}, spanError(span, err)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("parse slot unavailable", "error", err)
		return sess.Snapshot(), spanError(span, err)
	}
	start := s.now()
	res, parseErr := tabular.Parse(ctx, r, s.parseOpts)
	s.limiter.Release()

	if errors.Is(parseErr, context.Canceled) || errors.Is(parseErr, context.DeadlineExceeded) {
		logger.Info("load abandoned", "error", parseErr)
		return sess.Snapshot(), spanError(span, parseErr)
	}

	if err := sess.FileLoaded(filename, res, parseErr); err != nil {
		logger.Warn("file rejected", "error", err, "code", MapError(err).Code)
		s.record(ctx, audit.Event{
			Action:    audit.ActionLoadFailed,
			SessionID: id,
			Filename:  cleanFilename(filename),
			ErrorCode: MapError(err).Code,
		})
		return sess.Snapshot(), spanError(span, err)
	}

	snap := sess.Snapshot()
	span.SetAttributes(
		attribute.Int("csv.columns", len(snap.Header)),
		attribute.Int("csv.rows", snap.Rows),
	)
	logger.Info("file loaded",
		"columns", len(snap.Header),
		"rows", snap.Rows,
		"bytes", res.BytesRead,
		"extra_fields", res.ExtraFields,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	s.record(ctx, audit.Event{
		Action:    audit.ActionLoad,
		SessionID: id,
		Filename:  snap.Filename,
		Columns:   snap.Header,
		Rows:      snap.Rows,
		Bytes:     res.BytesRead,
	})
	return snap, nil
}

// Reorder moves one column within the session's order.
func (s *Service) Reorder(ctx context.Context, id string, from, to int) (Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "csvreorder.reorder", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("reorder.from", from),
		attribute.Int("reorder.to", to),
	))
	defer span.End()

	sess, err := s.Session(id)
	if err != nil {
		return Snapshot{}, spanError(span, err)
	}

	logger := logging.WithFields(ctx, "session_id", id)
	if err := sess.ColumnsReordered(from, to); err != nil {
		logger.Warn("reorder rejected", "from", from, "to", to, "error", err)
		return sess.Snapshot(), spanError(span, err)
	}

	snap := sess.Snapshot()
	logger.Debug("columns reordered", "from", from, "to", to, "order", snap.Order)
	s.record(ctx, audit.Event{
		Action:    audit.ActionReorder,
		SessionID: id,
		Filename:  snap.Filename,
		Columns:   snap.Order,
	})
	return snap, nil
}

// Export builds a new download for the session, revoking the previous one.
func (s *Service) Export(ctx context.Context, id string) (*Export, error) {
	ctx, span := s.tracer.Start(ctx, "csvreorder.export", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	sess, err := s.Session(id)
	if err != nil {
		return nil, spanError(span, err)
	}

	logger := logging.WithFields(ctx, "session_id", id)
	exp, err := sess.ExportRequested()
	if err != nil {
		logger.Warn("export rejected", "error", err)
		return nil, spanError(span, err)
	}

	span.SetAttributes(
		attribute.String("export.id", exp.ID),
		attribute.Int("export.rows", exp.Rows),
		attribute.Int("export.bytes", exp.Size()),
	)
	logger.Info("export ready", "handle", exp.ID, "rows", exp.Rows, "bytes", exp.Size())
	s.record(ctx, audit.Event{
		Action:    audit.ActionExport,
		SessionID: id,
		Filename:  exp.Filename,
		Columns:   exp.Columns,
		Rows:      exp.Rows,
		Bytes:     int64(exp.Size()),
		HandleID:  exp.ID,
	})
	return exp, nil
}

// Download returns the live export named by handleID.
func (s *Service) Download(ctx context.Context, id, handleID string) (*Export, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	exp, err := sess.Download(handleID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Event{
		Action:    audit.ActionDownload,
		SessionID: id,
		Filename:  exp.Filename,
		Rows:      exp.Rows,
		Bytes:     int64(exp.Size()),
		HandleID:  exp.ID,
	})
	return exp, nil
}

// Snapshot returns the session's current state.
func (s *Service) Snapshot(id string) (Snapshot, error) {
	sess, err := s.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// LimiterStatus reports parse slot usage.
func (s *Service) LimiterStatus() ParseLimiterStatus {
	return s.limiter.Status()
}

// WaitForParses blocks until in-flight parses finish or ctx is done.
func (s *Service) WaitForParses(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Shutdown closes every session so no download handle outlives the process.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	logging.FromContext(ctx).Info("sessions closed", "count", len(sessions))
}

// record writes an audit event. Audit failures are logged and never fail
// the user's action.
func (s *Service) record(ctx context.Context, ev audit.Event) {
	ev.ID = uuid.New()
	ev.CreatedAt = s.now()
	ev.IPAddress = IPAddressFromContext(ctx)
	ev.UserAgent = UserAgentFromContext(ctx)

	if err := s.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		logging.FromContext(ctx).Warn("audit record failed",
			"action", ev.Action,
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, MapError(err).Code)
	return err
}
