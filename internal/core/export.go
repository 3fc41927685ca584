package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/csvreorder/csvreorder/internal/reorder"
	"github.com/csvreorder/csvreorder/internal/tabular"
)

// Export is one materialized download. It is immutable once built; a session
// revokes it by dropping its reference, after which Download rejects its ID.
type Export struct {
	ID        string
	Filename  string
	Columns   []string
	Rows      int
	Data      []byte
	CreatedAt time.Time
}

// Size returns the serialized length in bytes.
func (e *Export) Size() int {
	return len(e.Data)
}

// Info returns the metadata shown to the browser.
func (e *Export) Info(stale bool) *ExportInfo {
	return &ExportInfo{
		ID:        e.ID,
		Filename:  e.Filename,
		Rows:      e.Rows,
		Size:      e.Size(),
		CreatedAt: e.CreatedAt,
		Stale:     stale,
	}
}

// ExportInfo describes the live download handle of a session.
type ExportInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Rows      int       `json:"rows"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	// Stale is set when the order changed after this export was built.
	Stale bool `json:"stale"`
}

// buildExport projects rows through order and serializes the result.
func buildExport(filename string, store *tabular.Store, order reorder.Order, opts tabular.WriteOptions, now time.Time) (*Export, error) {
	projected := reorder.Project(store.Rows(), order)

	data, err := tabular.Marshal(order, projected, opts)
	if err != nil {
		return nil, err
	}

	return &Export{
		ID:        uuid.NewString(),
		Filename:  exportFilename(filename),
		Columns:   order.Clone(),
		Rows:      len(projected),
		Data:      data,
		CreatedAt: now,
	}, nil
}
