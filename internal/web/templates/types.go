package templates

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.960 generate

// PageData is the view model for the full document.
type PageData struct {
	Workspace WorkspaceData
}

// WorkspaceData is the view model for the swappable workspace fragment.
type WorkspaceData struct {
	Alert *Alert

	// HasFile is false until a file has been loaded into the session.
	HasFile  bool
	Filename string
	State    string
	Rows     int

	Columns []Column
	Notes   []string

	// Preview holds the first projected rows, cells in column order.
	Preview [][]string

	CanExport bool
	Download  *Download
}

// Column is one entry of the draggable column list.
type Column struct {
	Index int
	Name  string
	First bool
	Last  bool
}

// Download links to the most recent export.
type Download struct {
	URL      string
	Filename string
	Size     int
	Stale    bool
}

// Alert is a user-facing error with its support code.
type Alert struct {
	Message string
	Action  string
	Code    string
}
