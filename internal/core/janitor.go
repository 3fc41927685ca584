package core

// janitor.go evicts sessions nobody has touched for SESSION_IDLE_TIMEOUT.
//
// Eviction closes the session, which drops its file and revokes its download
// handle, so abandoned tabs do not hold memory for the life of the process.

import (
	"context"
	"log/slog"
	"time"

	"github.com/csvreorder/csvreorder/internal/audit"
)

// StartJanitor runs EvictIdle every interval until ctx is cancelled.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	slog.Info("session janitor started",
		"interval", interval,
		"idle_timeout", s.idleTimeout,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			if n := s.EvictIdle(ctx); n > 0 {
				slog.Info("evicted idle sessions", "count", n, "remaining", s.SessionCount())
			}
		}
	}
}

// EvictIdle closes and forgets every session idle longer than the timeout.
// Returns the number evicted.
func (s *Service) EvictIdle(ctx context.Context) int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.LastActivity().Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
		s.record(ctx, audit.Event{Action: audit.ActionEvicted, SessionID: sess.ID()})
	}
	return len(idle)
}
