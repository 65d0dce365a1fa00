package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub-platform/studyindexer/internal/models"
)

func newRecord(id string, status models.Status) *models.StatusRecord {
	now := time.Now().UTC()
	return &models.StatusRecord{
		DocumentID: id,
		Status:     status,
		Metadata:   models.DocumentMetadata{Title: "t", Collection: models.CollectionGeneral, UserID: "42"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))

	rec, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, rec.Status)

	assert.ErrorIs(t, s.Create(ctx, newRecord("d1", models.StatusPending)), ErrExists)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))

	_, err := s.Update(ctx, "d1", Update{Status: models.StatusProcessing})
	require.NoError(t, err)

	chunkCount := 3
	indexedAt := time.Now().UTC()
	rec, err := s.Update(ctx, "d1", Update{
		Status:     models.StatusCompleted,
		ChunkCount: &chunkCount,
		VectorIDs:  []string{"d1_chunk_0", "d1_chunk_1", "d1_chunk_2"},
		IndexedAt:  &indexedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ChunkCount)
	assert.Len(t, rec.VectorIDs, 3)
	require.NotNil(t, rec.IndexedAt)

	// Omitted fields survive the next update.
	rec, err = s.Update(ctx, "d1", Update{Status: models.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ChunkCount)
	assert.Len(t, rec.VectorIDs, 3)
	assert.Equal(t, "t", rec.Metadata.Title)
}

func TestUpdateRejectsBackwardTransition(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))

	_, err := s.Update(ctx, "d1", Update{Status: models.StatusProcessing})
	require.NoError(t, err)

	_, err = s.Update(ctx, "d1", Update{Status: models.StatusPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Update(ctx, "d1", Update{Status: models.StatusCompleted})
	require.NoError(t, err)

	// Reindex path: completed may re-enter processing.
	_, err = s.Update(ctx, "d1", Update{Status: models.StatusProcessing})
	assert.NoError(t, err)
}

func TestFailedKeepsErrorAndRetryClears(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))

	_, err := s.Update(ctx, "d1", Update{Status: models.StatusProcessing})
	require.NoError(t, err)

	msg := "parse pdf: unexpected EOF"
	rec, err := s.Update(ctx, "d1", Update{Status: models.StatusFailed, Error: &msg})
	require.NoError(t, err)
	assert.Equal(t, msg, rec.Error)

	rec, err = s.Update(ctx, "d1", Update{Status: models.StatusProcessing})
	require.NoError(t, err)
	assert.Empty(t, rec.Error, "error cleared when leaving failed")
}

func TestListFiltersByStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))
	require.NoError(t, s.Create(ctx, newRecord("d2", models.StatusPending)))
	_, err := s.Update(ctx, "d2", Update{Status: models.StatusProcessing})
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := s.List(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].DocumentID)
}

func TestMarkDeletedIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))

	require.NoError(t, s.MarkDeleted(ctx, "d1"))

	rec, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, rec.Status)

	_, err = s.Update(ctx, "d1", Update{Status: models.StatusProcessing})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while leased")

	ok, err = s.AcquireLease(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, ok, "different ids never block each other")

	require.NoError(t, s.ReleaseLease(ctx, "d1"))
	ok, err = s.AcquireLease(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepFailsStuckProcessing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stuck := newRecord("stuck", models.StatusProcessing)
	stuck.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, s.Create(ctx, stuck))

	fresh := newRecord("fresh", models.StatusProcessing)
	require.NoError(t, s.Create(ctx, fresh))

	n, err := s.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := s.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "indexing timed out", rec.Error)

	rec, err = s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, rec.Status)
}

func TestStatusCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("d1", models.StatusPending)))
	require.NoError(t, s.Create(ctx, newRecord("d2", models.StatusPending)))

	counts, err := s.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.StatusPending])
}
