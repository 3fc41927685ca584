package reorder

import "github.com/csvreorder/csvreorder/internal/tabular"

// Project rebuilds each row with exactly the keys in order. Values are
// copied by name; a name missing from a source row is stored as the absent
// marker so every output row has the same key set.
func Project(rows []tabular.Row, order Order) []tabular.Row {
	out := make([]tabular.Row, len(rows))
	for i, row := range rows {
		projected := make(tabular.Row, len(order))
		for _, name := range order {
			projected[name] = row.Get(name)
		}
		out[i] = projected
	}
	return out
}
