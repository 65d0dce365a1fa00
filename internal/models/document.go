package models

import (
	"time"
)

// Status is the lifecycle state of a document in the indexing pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// CanTransition reports whether a status change is allowed. Progression is
// forward-only, except that completed/failed documents may re-enter
// processing via reindex. Deleted is terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusDeleted
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusDeleted
	case StatusCompleted, StatusFailed:
		return to == StatusProcessing || to == StatusDeleted
	case StatusDeleted:
		return false
	}
	return false
}

// Collection names the logical document space a document belongs to.
const (
	CollectionGeneral  = "general"
	CollectionCourse   = "course"
	CollectionPersonal = "personal"
)

// PersonalMetadata is mandatory for documents in the personal collection.
type PersonalMetadata struct {
	FolderPath   string            `json:"folder_path"`
	IsFavorite   bool              `json:"is_favorite"`
	LastViewed   *time.Time        `json:"last_viewed,omitempty"`
	Importance   int               `json:"importance"` // 1-5
	SourceURL    string            `json:"source_url,omitempty"`
	RelatedDocs  []string          `json:"related_docs,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

type DocumentMetadata struct {
	Title        string                 `json:"title"`
	Author       string                 `json:"author,omitempty"`
	CourseID     string                 `json:"course_id,omitempty"`
	DocumentType string                 `json:"document_type,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Collection   string                 `json:"collection"`
	UserID       string                 `json:"user_id"`
	Personal     *PersonalMetadata      `json:"personal,omitempty"`
	Custom       map[string]interface{} `json:"custom_metadata,omitempty"`
}

// StatusRecord is the durable tracker entry for one document, keyed by id.
type StatusRecord struct {
	DocumentID string           `json:"document_id"`
	Status     Status           `json:"status"`
	Metadata   DocumentMetadata `json:"metadata"`
	FileName   string           `json:"file_name"`
	FileExt    string           `json:"file_ext"`
	FileSize   int64            `json:"file_size"`
	Checksum   string           `json:"checksum,omitempty"`
	ChunkCount int              `json:"chunk_count"`
	VectorIDs  []string         `json:"vector_ids,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	IndexedAt  *time.Time       `json:"indexed_at,omitempty"`
}

// StoredName is the filename the raw upload is persisted under.
func (r *StatusRecord) StoredName() string {
	return r.DocumentID + r.FileExt
}
