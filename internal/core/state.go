package core

// State is the session controller's single authoritative state.
type State int

const (
	// StateEmpty holds no file.
	StateEmpty State = iota
	// StateLoaded holds a file with columns in header order.
	StateLoaded
	// StateReordered holds a file whose column order has been edited.
	StateReordered
	// StateExported holds a file with a live download handle.
	StateExported
)

var stateNames = [...]string{
	StateEmpty:     "empty",
	StateLoaded:    "loaded",
	StateReordered: "reordered",
	StateExported:  "exported",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HasFile reports whether a file is installed.
func (s State) HasFile() bool {
	return s != StateEmpty
}
