// Package tabular holds parsed CSV data in memory and provides the parser
// and serializer used to move it in and out of CSV text.
//
// A Store is immutable once built: callers receive copies of the header and
// must treat rows as read-only. A new file load builds a new Store.
package tabular

// Row maps column names to cell values.
type Row map[string]Value

// Get returns the value at name, or the absent marker when the row has no
// such key.
func (r Row) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Absent()
}

// Store is the parsed content of one CSV file.
type Store struct {
	header []string
	rows   []Row
}

// NewStore builds a Store from a header and rows. The header slice is copied.
func NewStore(header []string, rows []Row) *Store {
	h := make([]string, len(header))
	copy(h, header)
	if rows == nil {
		rows = []Row{}
	}
	return &Store{header: h, rows: rows}
}

// Header returns a copy of the column names in file order.
func (s *Store) Header() []string {
	h := make([]string, len(s.header))
	copy(h, s.header)
	return h
}

// Rows returns the data rows. The slice and its rows must not be modified.
func (s *Store) Rows() []Row {
	return s.rows
}

// Len returns the number of data rows.
func (s *Store) Len() int {
	return len(s.rows)
}

// Width returns the number of columns.
func (s *Store) Width() int {
	return len(s.header)
}
