package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/csvreorder/csvreorder/internal/config"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS csvreorder_audit_log (
    id            UUID PRIMARY KEY,
    action        TEXT NOT NULL,
    severity      TEXT NOT NULL,
    session_id    TEXT NOT NULL,
    filename      TEXT,
    columns       TEXT[],
    rows_affected INTEGER,
    bytes         BIGINT,
    handle_id     UUID,
    error_code    TEXT,
    ip_address    TEXT,
    user_agent    TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS csvreorder_audit_log_session_idx
    ON csvreorder_audit_log (session_id, created_at);
`

const insertSQL = `
INSERT INTO csvreorder_audit_log (
    id, action, severity, session_id, filename, columns, rows_affected,
    bytes, handle_id, error_code, ip_address, user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// execer is the subset of pgxpool.Pool used for writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgRecorder appends events to a PostgreSQL table.
type PgRecorder struct {
	db      execer
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Open connects to the audit database and creates the table if needed.
func Open(ctx context.Context, cfg config.AuditConfig) (*PgRecorder, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse audit database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect audit database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	r := &PgRecorder{db: pool, pool: pool, timeout: cfg.WriteTimeout}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the audit table and its index.
func (r *PgRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Record inserts ev. A zero ID or timestamp is filled in.
func (r *PgRecorder) Record(ctx context.Context, ev Event) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	_, err := r.db.Exec(ctx, insertSQL, insertArgs(ev)...)
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", ev.Action, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PgRecorder) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func insertArgs(ev Event) []any {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	var columns []string
	if len(ev.Columns) > 0 {
		columns = ev.Columns
	}

	return []any{
		pgtype.UUID{Bytes: ev.ID, Valid: true},
		string(ev.Action),
		string(SeverityFor(ev.Action)),
		ev.SessionID,
		toPgText(ev.Filename),
		columns,
		toPgInt4(ev.Rows, countsKnown(ev.Action)),
		toPgInt8(ev.Bytes, countsKnown(ev.Action)),
		toPgUUID(ev.HandleID),
		toPgText(ev.ErrorCode),
		toPgText(ev.IPAddress),
		toPgText(ev.UserAgent),
		pgtype.Timestamptz{Time: ev.CreatedAt, Valid: true},
	}
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// countsKnown reports whether the action always measures rows and bytes, so a
// zero is a real count rather than a missing one.
func countsKnown(action Action) bool {
	return action == ActionLoad || action == ActionExport
}

func toPgInt4(i int, keepZero bool) pgtype.Int4 {
	if i == 0 && !keepZero {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

func toPgInt8(i int64, keepZero bool) pgtype.Int8 {
	if i == 0 && !keepZero {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: i, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
