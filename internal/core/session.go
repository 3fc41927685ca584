package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/csvreorder/csvreorder/internal/reorder"
	"github.com/csvreorder/csvreorder/internal/tabular"
)

// PreviewRows is how many projected rows a snapshot carries for display.
const PreviewRows = 5

// Session is the controller for one browser's file. All transitions hold the
// session mutex, so a session has a single writer; parsing happens before
// FileLoaded is called and never under the lock.
type Session struct {
	mu sync.Mutex

	id        string
	state     State
	filename  string
	store     *tabular.Store
	order     reorder.Order
	export    *Export
	stale     bool
	lastErr   error
	loadStats LoadStats

	writeOpts    tabular.WriteOptions
	now          func() time.Time
	createdAt    time.Time
	lastActivity time.Time
}

// LoadStats reports what the parser had to tolerate in the current file.
type LoadStats struct {
	ExtraFields int               `json:"extra_fields"`
	ShortRows   int               `json:"short_rows"`
	BlankLines  int               `json:"blank_lines"`
	Renamed     map[string]string `json:"renamed,omitempty"`
	Bytes       int64             `json:"bytes"`
}

// NewSession returns an Empty session.
func NewSession(id string, opts tabular.WriteOptions) *Session {
	return newSession(id, opts, time.Now)
}

func newSession(id string, opts tabular.WriteOptions, now func() time.Time) *Session {
	t := now()
	return &Session{
		id:           id,
		writeOpts:    opts,
		now:          now,
		createdAt:    t,
		lastActivity: t,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when the session last handled a transition.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// FileLoaded installs a completed parse. Any prior file, order and export are
// discarded first, so a failed load leaves the session Empty.
func (s *Session) FileLoaded(filename string, res *tabular.Result, parseErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	s.reset()

	if parseErr != nil {
		return s.fail(classifyParseError(parseErr))
	}
	if res == nil || res.Store == nil || res.Store.Width() == 0 {
		return s.fail(ErrEmptyOrHeaderlessFile)
	}

	s.filename = cleanFilename(filename)
	s.store = res.Store
	s.order = reorder.Initialize(res.Store.Header())
	s.loadStats = LoadStats{
		ExtraFields: res.ExtraFields,
		ShortRows:   res.ShortRows,
		BlankLines:  res.BlankLines,
		Renamed:     res.Renamed,
		Bytes:       res.BytesRead,
	}
	s.state = StateLoaded
	return nil
}

// ColumnsReordered moves the column at from to position to. It is valid in
// every state that holds a file. An invalid index leaves the order as it was.
func (s *Session) ColumnsReordered(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	if !s.state.HasFile() {
		return s.fail(ErrNoFileLoaded)
	}

	next, err := reorder.Move(s.order, from, to)
	if err != nil {
		return s.fail(err)
	}
	s.lastErr = nil

	if next.Equal(s.order) {
		return nil
	}
	s.order = next
	s.state = StateReordered
	if s.export != nil {
		s.stale = true
	}
	return nil
}

// ExportRequested projects the rows through the current order and replaces
// the live download handle. The previous handle is revoked.
func (s *Session) ExportRequested() (*Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	if !s.state.HasFile() {
		return nil, s.fail(ErrNoFileLoaded)
	}
	if s.store.Len() == 0 {
		return nil, s.fail(ErrNoRows)
	}

	exp, err := buildExport(s.filename, s.store, s.order, s.writeOpts, s.now())
	if err != nil {
		return nil, s.fail(fmt.Errorf("serialize export: %w", err))
	}

	s.export = exp
	s.stale = false
	s.lastErr = nil
	s.state = StateExported
	return exp, nil
}

// Download returns the live export if id names it.
func (s *Session) Download(id string) (*Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	if s.export == nil || s.export.ID != id {
		return nil, ErrHandleRevoked
	}
	return s.export, nil
}

// Close ends the session and revokes any live handle.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// reset returns the session to Empty. Callers hold s.mu.
func (s *Session) reset() {
	s.state = StateEmpty
	s.filename = ""
	s.store = nil
	s.order = nil
	s.export = nil
	s.stale = false
	s.lastErr = nil
	s.loadStats = LoadStats{}
}

// fail records err for the next snapshot and returns it. Callers hold s.mu.
func (s *Session) fail(err error) error {
	s.lastErr = err
	return err
}

func (s *Session) touch() {
	s.lastActivity = s.now()
}

// Snapshot is a consistent read of the session for rendering.
type Snapshot struct {
	SessionID string      `json:"session_id"`
	State     State       `json:"state"`
	Filename  string      `json:"filename,omitempty"`
	Header    []string    `json:"header,omitempty"`
	Order     []string    `json:"order"`
	Rows      int         `json:"rows"`
	Preview   [][]string  `json:"preview,omitempty"`
	CanExport bool        `json:"can_export"`
	Export    *ExportInfo `json:"export,omitempty"`
	Stats     *LoadStats  `json:"stats,omitempty"`

	// Error is the user-facing form of the last failed transition.
	Error *UserMessage `json:"error,omitempty"`

	err error
}

// Err returns the technical error behind Snapshot.Error.
func (s Snapshot) Err() error {
	return s.err
}

// Snapshot returns the current state without changing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID: s.id,
		State:     s.state,
		Filename:  s.filename,
		Order:     s.order.Clone(),
		err:       s.lastErr,
	}
	if s.store != nil {
		snap.Header = s.store.Header()
		snap.Rows = s.store.Len()
		snap.CanExport = s.store.Len() > 0
		snap.Preview = preview(s.store, s.order, PreviewRows)
		stats := s.loadStats
		snap.Stats = &stats
	}
	if s.export != nil {
		snap.Export = s.export.Info(s.stale)
	}
	if s.lastErr != nil {
		msg := MapError(s.lastErr)
		snap.Error = &msg
	}
	return snap
}

// preview renders the first n rows as text cells in order.
func preview(store *tabular.Store, order reorder.Order, n int) [][]string {
	rows := store.Rows()
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([][]string, len(rows))
	for i, row := range reorder.Project(rows, order) {
		cells := make([]string, len(order))
		for j, name := range order {
			cells[j] = row.Get(name).Text()
		}
		out[i] = cells
	}
	return out
}

// IsRecoverable reports whether err is a session-level failure the user can
// fix with a new action, as opposed to an internal fault.
func IsRecoverable(err error) bool {
	for _, target := range []error{
		ErrEmptyOrHeaderlessFile, ErrParseFailure, ErrIndexOutOfRange,
		ErrNoFileLoaded, ErrNoRows, ErrHandleRevoked, ErrFileTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
