package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studyhub-platform/studyindexer/internal/chunker"
	"github.com/studyhub-platform/studyindexer/internal/config"
	"github.com/studyhub-platform/studyindexer/internal/embedding"
	"github.com/studyhub-platform/studyindexer/internal/loader"
	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/storage"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

// Config carries the indexing policy.
type Config struct {
	MaxUploadSize     int64
	AllowedMIMETypes  map[string]string // MIME type -> file extension
	DefaultCollection string
	ChunkOpts         chunker.Options
}

// ConfigFrom derives an indexer Config from app configuration.
func ConfigFrom(cfg config.IndexingConfig) Config {
	known := map[string]string{
		"text/plain":      ".txt",
		"text/markdown":   ".md",
		"application/pdf": ".pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	}
	allowed := make(map[string]string)
	for _, mime := range cfg.SupportedFileTypes {
		if ext, ok := known[mime]; ok {
			allowed[mime] = ext
		}
	}
	return Config{
		MaxUploadSize:     cfg.MaxUploadSize,
		AllowedMIMETypes:  allowed,
		DefaultCollection: cfg.DefaultCollection,
		ChunkOpts: chunker.Options{
			ChunkSize: cfg.MaxChunkSize,
			Overlap:   cfg.ChunkOverlap,
		},
	}
}

// Indexer is the core orchestrator: it turns an uploaded file plus metadata
// into stored, searchable vector chunks and owns the document lifecycle.
type Indexer struct {
	store    vectorstore.Store
	embedder embedding.Provider
	tracker  tracker.Store
	files    storage.Storage
	loader   *loader.Loader
	chunker  *chunker.Chunker
	cfg      Config
}

func New(store vectorstore.Store, embedder embedding.Provider, trk tracker.Store, files storage.Storage, cfg Config) *Indexer {
	return &Indexer{
		store:    store,
		embedder: embedder,
		tracker:  trk,
		files:    files,
		loader:   loader.New(),
		chunker:  chunker.New(cfg.ChunkOpts),
		cfg:      cfg,
	}
}

// Upload is the raw uploaded file handed to Prepare.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Result summarizes a completed indexing run.
type Result struct {
	DocumentID string   `json:"document_id"`
	ChunkCount int      `json:"chunk_count"`
	VectorIDs  []string `json:"vector_ids"`
}

// ResolveCollection maps a document's logical collection and owner into the
// physical vector-store collection name. Index, search and delete all go
// through this one function.
func ResolveCollection(collection, userID, courseID, fallback string) string {
	switch collection {
	case models.CollectionPersonal:
		return "personal_" + userID
	case models.CollectionCourse:
		return "course_" + courseID
	case "":
		return fallback
	default:
		return collection
	}
}

func (i *Indexer) collectionFor(meta models.DocumentMetadata) string {
	return ResolveCollection(meta.Collection, meta.UserID, meta.CourseID, i.cfg.DefaultCollection)
}

// Prepare validates the upload, persists the raw bytes and writes the
// initial pending status record. No vector-store writes happen here.
func (i *Indexer) Prepare(ctx context.Context, up Upload, meta models.DocumentMetadata, userID string) (*models.StatusRecord, error) {
	contentType := up.ContentType
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	ext, ok := i.cfg.AllowedMIMETypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFileType, contentType)
	}
	if up.Size > i.cfg.MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileSizeTooLarge, up.Size, i.cfg.MaxUploadSize)
	}

	meta.UserID = userID
	if err := validateMetadata(&meta, i.cfg.DefaultCollection); err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	storedName := docID + ext

	size, checksum, err := i.files.Save(ctx, storedName, io.LimitReader(up.Data, i.cfg.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}
	if size > i.cfg.MaxUploadSize {
		_ = i.files.Delete(storedName)
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileSizeTooLarge, size, i.cfg.MaxUploadSize)
	}

	now := time.Now().UTC()
	rec := &models.StatusRecord{
		DocumentID: docID,
		Status:     models.StatusPending,
		Metadata:   meta,
		FileName:   up.FileName,
		FileExt:    ext,
		FileSize:   size,
		Checksum:   checksum,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := i.tracker.Create(ctx, rec); err != nil {
		_ = i.files.Delete(storedName)
		return nil, newIndexerError(CodeTrackerUnavailable, "record upload", err)
	}

	slog.Info("document prepared", "document_id", docID,
		"collection", meta.Collection, "size", size)
	return rec, nil
}

// Index runs the full pipeline for a prepared document: load, chunk, embed,
// upsert, then mark completed. On any failure the document is marked failed
// and the error is returned to the caller.
func (i *Indexer) Index(ctx context.Context, docID string) (*Result, error) {
	rec, err := i.getRecord(ctx, docID)
	if err != nil {
		return nil, err
	}

	release, err := i.lease(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer release()

	return i.runIndex(ctx, rec, false)
}

// Reindex purges the document's existing chunk vectors and re-runs the
// pipeline. Delete-before-insert ordering guarantees an interrupted reindex
// never leaves duplicate chunks.
func (i *Indexer) Reindex(ctx context.Context, docID string) (*Result, error) {
	rec, err := i.getRecord(ctx, docID)
	if err != nil {
		return nil, err
	}

	release, err := i.lease(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer release()

	return i.runIndex(ctx, rec, true)
}

func (i *Indexer) lease(ctx context.Context, docID string) (func(), error) {
	ok, err := i.tracker.AcquireLease(ctx, docID)
	if err != nil {
		return nil, newIndexerError(CodeTrackerUnavailable, "acquire lease", err)
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, ErrIndexingInProgress)
	}
	return func() { _ = i.tracker.ReleaseLease(context.WithoutCancel(ctx), docID) }, nil
}

func (i *Indexer) runIndex(ctx context.Context, rec *models.StatusRecord, purge bool) (*Result, error) {
	docID := rec.DocumentID
	if rec.Status == models.StatusDeleted {
		return nil, fmt.Errorf("document %s: %w", docID, ErrDocumentNotFound)
	}
	collection := i.collectionFor(rec.Metadata)

	if _, err := i.tracker.Update(ctx, docID, tracker.Update{Status: models.StatusProcessing}); err != nil {
		return nil, newIndexerError(CodeTrackerUnavailable, "mark processing", err)
	}

	res, err := i.pipeline(ctx, rec, collection, purge)
	if err != nil {
		msg := err.Error()
		if _, uerr := i.tracker.Update(ctx, docID, tracker.Update{
			Status: models.StatusFailed,
			Error:  &msg,
		}); uerr != nil {
			slog.Error("failed to record indexing failure", "document_id", docID, "error", uerr)
		}
		slog.Error("indexing failed", "document_id", docID, "collection", collection, "error", err)
		return nil, err
	}

	chunkCount := res.ChunkCount
	indexedAt := time.Now().UTC()
	if _, err := i.tracker.Update(ctx, docID, tracker.Update{
		Status:     models.StatusCompleted,
		ChunkCount: &chunkCount,
		VectorIDs:  res.VectorIDs,
		IndexedAt:  &indexedAt,
	}); err != nil {
		return nil, newIndexerError(CodeTrackerUnavailable, "mark completed", err)
	}

	slog.Info("document indexed", "document_id", docID,
		"collection", collection, "chunks", chunkCount)
	return res, nil
}

func (i *Indexer) pipeline(ctx context.Context, rec *models.StatusRecord, collection string, purge bool) (*Result, error) {
	docID := rec.DocumentID

	if purge {
		if err := i.purgeChunks(ctx, collection, docID); err != nil {
			return nil, err
		}
	}

	extracted, err := i.loader.Load(i.files.Path(rec.StoredName()))
	if err != nil {
		if errors.Is(err, loader.ErrUnsupportedExtension) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return nil, &ProcessingError{DocumentID: docID, Err: err}
	}

	chunks, err := i.chunker.Split(extracted.Content)
	if err != nil {
		return nil, &ProcessingError{DocumentID: docID, Err: err}
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Content
	}

	vectors, err := i.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, newIndexerError(CodeMLNotAvailable, "embed chunks", err)
	}

	records := make([]vectorstore.Record, len(chunks))
	vectorIDs := make([]string, len(chunks))
	for idx, c := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, c.Index)
		vectorIDs[idx] = chunkID
		records[idx] = vectorstore.Record{
			ID:        chunkID,
			Content:   c.Content,
			Embedding: vectors[idx],
			Metadata:  chunkMetadata(rec, c, len(chunks)),
		}
	}

	if err := i.store.EnsureCollection(ctx, collection, map[string]string{
		"collection_type": rec.Metadata.Collection,
	}); err != nil {
		return nil, newIndexerError(CodeVectorStoreDown, "ensure collection", err)
	}
	if err := i.store.Upsert(ctx, collection, records); err != nil {
		return nil, newIndexerError(CodeVectorStoreDown, "store chunks", err)
	}

	return &Result{DocumentID: docID, ChunkCount: len(chunks), VectorIDs: vectorIDs}, nil
}

func (i *Indexer) purgeChunks(ctx context.Context, collection, docID string) error {
	filter := vectorstore.Or{
		vectorstore.Eq{Field: "document_id", Value: docID},
		vectorstore.Eq{Field: "parent_document_id", Value: docID},
	}
	if err := i.store.Delete(ctx, collection, filter); err != nil {
		return newIndexerError(CodeVectorStoreDown, "purge chunks", err)
	}
	return nil
}

// chunkMetadata copies the parent document's metadata onto a chunk, adding
// the chunk linkage fields. Tags are flattened to a comma-joined string so
// equality filters stay cheap.
func chunkMetadata(rec *models.StatusRecord, c chunker.Chunk, total int) map[string]interface{} {
	meta := map[string]interface{}{
		"document_id":        rec.DocumentID,
		"parent_document_id": rec.DocumentID,
		"is_chunk":           true,
		"chunk_index":        c.Index,
		"total_chunks":       total,
		"chunk_size":         len(c.Content),
		"title":              rec.Metadata.Title,
		"collection":         rec.Metadata.Collection,
		"user_id":            rec.Metadata.UserID,
	}
	if rec.Metadata.Author != "" {
		meta["author"] = rec.Metadata.Author
	}
	if rec.Metadata.CourseID != "" {
		meta["course_id"] = rec.Metadata.CourseID
	}
	if rec.Metadata.DocumentType != "" {
		meta["document_type"] = rec.Metadata.DocumentType
	}
	if len(rec.Metadata.Tags) > 0 {
		meta["tags"] = strings.Join(rec.Metadata.Tags, ",")
	}
	return meta
}

// GetStatus returns the status record for a document id.
func (i *Indexer) GetStatus(ctx context.Context, docID string) (*models.StatusRecord, error) {
	return i.getRecord(ctx, docID)
}

func (i *Indexer) getRecord(ctx context.Context, docID string) (*models.StatusRecord, error) {
	rec, err := i.tracker.Get(ctx, docID)
	if errors.Is(err, tracker.ErrNotFound) {
		return nil, fmt.Errorf("document %s: %w", docID, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, newIndexerError(CodeTrackerUnavailable, "get status", err)
	}
	return rec, nil
}

// UpdateMetadata patches document metadata on both the status record and
// every stored chunk, leaving embeddings untouched. The fields that decide
// collection placement are immutable: moving a document is a delete plus
// re-upload, never a metadata patch.
func (i *Indexer) UpdateMetadata(ctx context.Context, docID string, patch map[string]interface{}) (*models.StatusRecord, error) {
	rec, err := i.getRecord(ctx, docID)
	if err != nil {
		return nil, err
	}

	for _, field := range []string{"collection", "course_id", "user_id"} {
		if _, ok := patch[field]; ok {
			return nil, fmt.Errorf("%w: %s is immutable", ErrInvalidDocument, field)
		}
	}

	merged, err := mergeMetadata(rec.Metadata, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := validateMetadata(merged, i.cfg.DefaultCollection); err != nil {
		return nil, err
	}

	updated, err := i.tracker.Update(ctx, docID, tracker.Update{
		Status:   rec.Status,
		Metadata: merged,
	})
	if err != nil {
		return nil, newIndexerError(CodeTrackerUnavailable, "update metadata", err)
	}

	if cp := chunkPatch(merged, patch); len(cp) > 0 {
		collection := i.collectionFor(rec.Metadata)
		if err := i.store.UpdateMetadata(ctx, collection,
			vectorstore.Eq{Field: "document_id", Value: docID}, cp); err != nil {
			slog.Warn("vector metadata patch failed", "document_id", docID, "error", err)
		}
	}

	return updated, nil
}

// chunkPatch projects a validated patch onto the fields chunks carry, using
// the same flattening as chunkMetadata. Fields chunks never store, like
// personal settings, are dropped.
func chunkPatch(merged *models.DocumentMetadata, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for field := range patch {
		switch field {
		case "title":
			out["title"] = merged.Title
		case "author":
			out["author"] = merged.Author
		case "document_type":
			out["document_type"] = merged.DocumentType
		case "tags":
			out["tags"] = strings.Join(merged.Tags, ",")
		}
	}
	return out
}

func mergeMetadata(meta models.DocumentMetadata, patch map[string]interface{}) (*models.DocumentMetadata, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range patch {
		m[k] = v
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var merged models.DocumentMetadata
	if err := json.Unmarshal(buf, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Delete removes the document's vectors, then its uploaded file, and marks
// the status record deleted. It takes the same per-document lease as Index
// and Reindex, so a delete racing an in-flight indexing run fails with
// ErrIndexingInProgress instead of leaving vectors behind. The record only
// ends up deleted if the vector-store delete succeeded; file cleanup
// failures are logged but do not fail the deletion.
func (i *Indexer) Delete(ctx context.Context, docID string) error {
	rec, err := i.getRecord(ctx, docID)
	if err != nil {
		return err
	}

	release, err := i.lease(ctx, docID)
	if err != nil {
		return err
	}
	defer release()

	collection := i.collectionFor(rec.Metadata)
	if err := i.purgeChunks(ctx, collection, docID); err != nil {
		slog.Error("vector delete failed", "document_id", docID, "error", err)
		return err
	}
	slog.Info("vectors deleted", "document_id", docID, "collection", collection)

	if err := i.tracker.MarkDeleted(ctx, docID); err != nil {
		return newIndexerError(CodeTrackerUnavailable, "mark deleted", err)
	}

	if err := i.files.Delete(rec.StoredName()); err != nil {
		slog.Warn("upload file delete failed", "document_id", docID, "error", err)
	} else {
		slog.Info("upload file deleted", "document_id", docID)
	}

	return nil
}
