package domain

import "time"

type IngestionStatus string

const (
	IngestionNotStarted IngestionStatus = "not_started"
	IngestionQueued     IngestionStatus = "queued"
	IngestionRunning    IngestionStatus = "running"
	IngestionCompleted  IngestionStatus = "completed"
	IngestionFailed     IngestionStatus = "failed"
)

// IngestionState is the per-document ingestion record. It is mutated only
// through the repository's transition methods; readers get a copy.
type IngestionState struct {
	Status   IngestionStatus `json:"status"`
	Progress int             `json:"progress"`
	Error    string          `json:"error,omitempty"`
}

type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	StoragePath string `json:"storage_path"`

	// ActiveGeneration identifies the chunk set currently visible to search.
	// Empty until the first ingestion completes.
	ActiveGeneration string `json:"active_generation,omitempty"`

	Ingestion IngestionState `json:"ingestion"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Searchable reports whether search can return anything for this document.
func (d *Document) Searchable() bool {
	return d != nil && d.ActiveGeneration != ""
}
