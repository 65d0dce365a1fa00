package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/studyhub-platform/studyindexer/internal/models"
)

var (
	// ErrNotFound is returned when no status record exists for the id.
	ErrNotFound = errors.New("status record not found")

	// ErrExists is returned by Create when the id is already tracked. Ids
	// are never reused, so this indicates a caller bug.
	ErrExists = errors.New("status record already exists")

	// ErrInvalidTransition is returned when an update would move a record
	// backward in its lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnavailable wraps backend connectivity failures.
	ErrUnavailable = errors.New("tracker unavailable")
)

// Update merges into an existing record; nil/omitted fields are retained.
type Update struct {
	Status     models.Status
	Error      *string
	ChunkCount *int
	VectorIDs  []string
	IndexedAt  *time.Time
	Metadata   *models.DocumentMetadata
}

// Store is the single authoritative document status store. All writes to
// one id are atomic read-modify-write; writers to different ids never
// block each other.
type Store interface {
	Create(ctx context.Context, rec *models.StatusRecord) error
	Get(ctx context.Context, id string) (*models.StatusRecord, error)
	Update(ctx context.Context, id string, upd Update) (*models.StatusRecord, error)

	// List returns records filtered by status; empty status means all.
	List(ctx context.Context, status models.Status) ([]*models.StatusRecord, error)

	// MarkDeleted sets status=deleted, retaining the record so the id can
	// never be silently reused.
	MarkDeleted(ctx context.Context, id string) error

	// StatusCounts returns the processing-status histogram.
	StatusCounts(ctx context.Context) (map[models.Status]int64, error)

	// AcquireLease takes the per-document indexing lease. It returns false
	// when another index/reindex run holds it.
	AcquireLease(ctx context.Context, id string) (bool, error)
	ReleaseLease(ctx context.Context, id string) error

	// Sweep fails every record stuck in processing longer than olderThan
	// and returns how many were failed.
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// apply merges upd into rec, enforcing the monotonic transition rule.
func apply(rec *models.StatusRecord, upd Update, now time.Time) error {
	if upd.Status != "" && upd.Status != rec.Status {
		if !models.CanTransition(rec.Status, upd.Status) {
			return errors.Join(ErrInvalidTransition,
				errors.New(string(rec.Status)+" -> "+string(upd.Status)))
		}
		rec.Status = upd.Status
	}
	if upd.Error != nil {
		rec.Error = *upd.Error
	}
	if rec.Status != models.StatusFailed {
		rec.Error = ""
	}
	if upd.ChunkCount != nil {
		rec.ChunkCount = *upd.ChunkCount
	}
	if upd.VectorIDs != nil {
		rec.VectorIDs = upd.VectorIDs
	}
	if upd.IndexedAt != nil {
		rec.IndexedAt = upd.IndexedAt
	}
	if upd.Metadata != nil {
		rec.Metadata = *upd.Metadata
	}
	rec.UpdatedAt = now
	return nil
}
