package domain

import "time"

type ChangeKind string

const (
	ChangeNew      ChangeKind = "new"
	ChangeModified ChangeKind = "modified"
	ChangeManual   ChangeKind = "manual"
)

// CorpusFile is one allow-listed file found under the corpus root.
type CorpusFile struct {
	Path     string
	RelPath  string
	FileType string
	Size     int64
}

// IndexJob is the unit of indexing work emitted by the change detector.
type IndexJob struct {
	Path         string     `json:"path"`
	ContentHash  string     `json:"content_hash"`
	FileType     string     `json:"file_type"`
	Size         int64      `json:"size"`
	DepartmentID int64      `json:"department_id"`
	RoleID       int64      `json:"role_id"`
	Change       ChangeKind `json:"change"`
	DetectedAt   time.Time  `json:"detected_at"`
}

type ScanReport struct {
	Jobs      []IndexJob    `json:"-"`
	Scanned   int           `json:"files_scanned"`
	Added     int           `json:"files_added"`
	Modified  int           `json:"files_updated"`
	Unchanged int           `json:"files_unchanged"`
	Duplicate int           `json:"files_duplicate"`
	Rejected  int           `json:"files_rejected"`
	Failed    int           `json:"files_failed"`
	Queued    int           `json:"files_queued"`
	Removed   int           `json:"files_removed"`
	Duration  time.Duration `json:"duration"`
	// Missing lists stored paths the walk no longer found.
	Missing []string `json:"-"`
}
