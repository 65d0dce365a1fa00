package indexer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub-platform/studyindexer/internal/chunker"
	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/storage"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

// fakeEmbedder produces deterministic bag-of-words vectors so texts sharing
// words end up close in cosine space.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	return wordVector(text), nil
}

func (f *fakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVector(t)
	}
	return out, nil
}

func wordVector(text string) []float32 {
	const dims = 64
	vec := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, `.,;:!?"'()`)))
		vec[h.Sum32()%dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

type testEnv struct {
	idx     *Indexer
	store   *vectorstore.MemoryStore
	tracker *tracker.MemoryStore
	files   storage.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	store := vectorstore.NewMemoryStore()
	trk := tracker.NewMemoryStore()
	cfg := Config{
		MaxUploadSize: 1 << 20,
		AllowedMIMETypes: map[string]string{
			"text/plain":      ".txt",
			"text/markdown":   ".md",
			"application/pdf": ".pdf",
		},
		DefaultCollection: models.CollectionGeneral,
		ChunkOpts:         chunker.Options{ChunkSize: 200, Overlap: 40},
	}
	return &testEnv{
		idx:     New(store, &fakeEmbedder{}, trk, files, cfg),
		store:   store,
		tracker: trk,
		files:   files,
	}
}

func (e *testEnv) upload(t *testing.T, content string, meta models.DocumentMetadata) *models.StatusRecord {
	t.Helper()
	rec, err := e.idx.Prepare(context.Background(), Upload{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Size:        int64(len(content)),
		Data:        strings.NewReader(content),
	}, meta, "user-1")
	require.NoError(t, err)
	return rec
}

const sampleText = `Photosynthesis converts light energy into chemical energy. Plants absorb carbon dioxide through stomata.

Cellular respiration releases the stored energy. Mitochondria are the site of respiration in eukaryotes.

The Calvin cycle fixes carbon into sugar. Rubisco catalyzes the first major step of carbon fixation.`

func TestUploadThenIndexLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Biology notes"})
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.Checksum)
	assert.Equal(t, int64(len(sampleText)), rec.FileSize)

	res, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Greater(t, res.ChunkCount, 0)
	assert.Len(t, res.VectorIDs, res.ChunkCount)
	for i, id := range res.VectorIDs {
		assert.Equal(t, fmt.Sprintf("%s_chunk_%d", rec.DocumentID, i), id)
	}

	status, err := env.idx.GetStatus(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, res.ChunkCount, status.ChunkCount)
	assert.NotNil(t, status.IndexedAt)

	count, err := env.store.Count(ctx, models.CollectionGeneral,
		vectorstore.Eq{Field: "document_id", Value: rec.DocumentID})
	require.NoError(t, err)
	assert.Equal(t, res.ChunkCount, count)
}

func TestPrepareRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.idx.Prepare(context.Background(), Upload{
		FileName:    "slides.pptx",
		ContentType: "application/vnd.ms-powerpoint",
		Size:        10,
		Data:        strings.NewReader("x"),
	}, models.DocumentMetadata{}, "user-1")
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestPrepareRejectsOversizedUpload(t *testing.T) {
	env := newTestEnv(t)
	env.idx.cfg.MaxUploadSize = 8

	_, err := env.idx.Prepare(context.Background(), Upload{
		FileName:    "big.txt",
		ContentType: "text/plain",
		Size:        100,
		Data:        strings.NewReader(strings.Repeat("a", 100)),
	}, models.DocumentMetadata{}, "user-1")
	assert.ErrorIs(t, err, ErrFileSizeTooLarge)
}

func TestPrepareEnforcesDeclaredSize(t *testing.T) {
	env := newTestEnv(t)
	env.idx.cfg.MaxUploadSize = 8

	// Declared size lies; the actual stream is what counts.
	_, err := env.idx.Prepare(context.Background(), Upload{
		FileName:    "big.txt",
		ContentType: "text/plain",
		Size:        4,
		Data:        strings.NewReader(strings.Repeat("a", 100)),
	}, models.DocumentMetadata{}, "user-1")
	assert.ErrorIs(t, err, ErrFileSizeTooLarge)
}

func TestIndexFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.idx.Prepare(ctx, Upload{
		FileName:    "broken.pdf",
		ContentType: "application/pdf",
		Size:        20,
		Data:        strings.NewReader("this is not a pdf"),
	}, models.DocumentMetadata{Title: "Broken"}, "user-1")
	require.NoError(t, err)

	_, err = env.idx.Index(ctx, rec.DocumentID)
	require.Error(t, err)
	var perr *ProcessingError
	assert.ErrorAs(t, err, &perr)

	status, err := env.idx.GetStatus(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.NotEmpty(t, status.Error)
}

func TestEmbedderDownMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	env.idx.embedder = &fakeEmbedder{fail: true}
	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.Error(t, err)
	var ierr *StudyIndexerError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, CodeMLNotAvailable, ierr.Code)

	status, err := env.idx.GetStatus(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
}

func TestReindexLeavesNoDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	first, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	second, err := env.idx.Reindex(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)

	count, err := env.store.Count(ctx, models.CollectionGeneral,
		vectorstore.Eq{Field: "document_id", Value: rec.DocumentID})
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, count)
}

func TestRetryAfterFailureClearsError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	env.idx.embedder = &fakeEmbedder{fail: true}
	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.Error(t, err)

	env.idx.embedder = &fakeEmbedder{}
	_, err = env.idx.Reindex(ctx, rec.DocumentID)
	require.NoError(t, err)

	status, err := env.idx.GetStatus(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Empty(t, status.Error)
}

func TestLeaseRejectsConcurrentIndexing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	ok, err := env.tracker.AcquireLease(ctx, rec.DocumentID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.idx.Index(ctx, rec.DocumentID)
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	require.NoError(t, env.tracker.ReleaseLease(ctx, rec.DocumentID))
	_, err = env.idx.Index(ctx, rec.DocumentID)
	assert.NoError(t, err)
}

func TestDeleteRemovesVectorsFileAndRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	require.NoError(t, env.idx.Delete(ctx, rec.DocumentID))

	count, err := env.store.Count(ctx, models.CollectionGeneral,
		vectorstore.Eq{Field: "document_id", Value: rec.DocumentID})
	require.NoError(t, err)
	assert.Zero(t, count)

	status, err := env.idx.GetStatus(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, status.Status)

	// Deleted is terminal: no further indexing allowed.
	_, err = env.idx.Reindex(ctx, rec.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteBlockedWhileIndexing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	ok, err := env.tracker.AcquireLease(ctx, rec.DocumentID)
	require.NoError(t, err)
	require.True(t, ok)

	err = env.idx.Delete(ctx, rec.DocumentID)
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	status, err := env.idx.GetStatus(ctx, rec.DocumentID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusDeleted, status.Status)

	require.NoError(t, env.tracker.ReleaseLease(ctx, rec.DocumentID))
	assert.NoError(t, env.idx.Delete(ctx, rec.DocumentID))
}

func TestIndexUnknownDocument(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.idx.Index(context.Background(), "no-such-doc")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestPersonalCollectionIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.upload(t, sampleText, models.DocumentMetadata{
		Title:      "My notes",
		Collection: models.CollectionPersonal,
	})
	require.NotNil(t, rec.Metadata.Personal)
	assert.Equal(t, "/", rec.Metadata.Personal.FolderPath)

	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	inPersonal, err := env.store.Count(ctx, "personal_user-1", nil)
	require.NoError(t, err)
	assert.Greater(t, inPersonal, 0)

	inGeneral, err := env.store.Count(ctx, models.CollectionGeneral, nil)
	require.NoError(t, err)
	assert.Zero(t, inGeneral)
}

func TestUpdateMetadataPatchesRecordAndChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Old title"})

	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	updated, err := env.idx.UpdateMetadata(ctx, rec.DocumentID,
		map[string]interface{}{"title": "New title"})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Metadata.Title)

	hit, err := env.store.Get(ctx, models.CollectionGeneral, rec.DocumentID+"_chunk_0")
	require.NoError(t, err)
	assert.Equal(t, "New title", hit.Metadata["title"])
}

func TestUpdateMetadataFlattensTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	updated, err := env.idx.UpdateMetadata(ctx, rec.DocumentID,
		map[string]interface{}{"tags": []interface{}{"biology", "exam"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"biology", "exam"}, updated.Metadata.Tags)

	// Chunks store tags comma-joined, same as at index time, so equality
	// filters on the patched value keep matching.
	hit, err := env.store.Get(ctx, models.CollectionGeneral, rec.DocumentID+"_chunk_0")
	require.NoError(t, err)
	assert.Equal(t, "biology,exam", hit.Metadata["tags"])
}

func TestUpdateMetadataRejectsInvalidPatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.upload(t, sampleText, models.DocumentMetadata{Title: "Bio"})

	_, err := env.idx.UpdateMetadata(ctx, rec.DocumentID,
		map[string]interface{}{"tags": []interface{}{"bad tag!"}})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestUpdateMetadataRejectsCollectionMove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.upload(t, sampleText, models.DocumentMetadata{
		Title:      "Bio",
		Collection: models.CollectionCourse,
		CourseID:   "CS101",
	})
	_, err := env.idx.Index(ctx, rec.DocumentID)
	require.NoError(t, err)

	for _, patch := range []map[string]interface{}{
		{"course_id": "CS202"},
		{"collection": models.CollectionGeneral},
		{"user_id": "user-2"},
	} {
		_, err := env.idx.UpdateMetadata(ctx, rec.DocumentID, patch)
		assert.ErrorIs(t, err, ErrInvalidDocument)
	}

	// Placement never drifted, so delete still purges the chunks' home.
	require.NoError(t, env.idx.Delete(ctx, rec.DocumentID))
	count, err := env.store.Count(ctx, "course_CS101",
		vectorstore.Eq{Field: "document_id", Value: rec.DocumentID})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResolveCollection(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		userID     string
		courseID   string
		want       string
	}{
		{"personal", models.CollectionPersonal, "u1", "", "personal_u1"},
		{"course", models.CollectionCourse, "u1", "CS101", "course_CS101"},
		{"empty falls back", "", "u1", "", "general"},
		{"literal passthrough", "archive_2025", "u1", "", "archive_2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCollection(tt.collection, tt.userID, tt.courseID, "general")
			assert.Equal(t, tt.want, got)
		})
	}
}
