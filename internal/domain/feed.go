package domain

// Row is one loosely typed record from the remote sheet. Column names are
// whatever the sheet happens to use.
type Row map[string]any

// Feed is the body of a remote read.
type Feed struct {
	Inventory []Row  `json:"inventory"`
	Users     []Row  `json:"users"`
	Logs      []Row  `json:"logs,omitempty"`
	Error     string `json:"error,omitempty"`
}
