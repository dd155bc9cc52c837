package project

// HistoryCap is the maximum number of revisions retained per project.
// Older revisions are dropped from the front when the cap is exceeded.
const HistoryCap = 10

// PrimaryFile is the distinguished backend file name. Identifier extraction
// and revision continuity always key off this file.
const PrimaryFile = "Code.js"

// Project is the durable per-project state: the latest generated backend
// source plus the identifiers extracted from it.
type Project struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Variables []string   `json:"variables"`
	Functions []string   `json:"functions"`
	History   []Revision `json:"history"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// Revision is one immutable historical snapshot of a project's generated
// backend source and its extracted identifiers.
type Revision struct {
	Timestamp string   `json:"timestamp"`
	Code      string   `json:"code"`
	Variables []string `json:"variables"`
	Functions []string `json:"functions"`
}

// Summary is a lightweight listing row.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
}
