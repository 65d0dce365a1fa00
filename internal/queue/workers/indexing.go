// Package workers contains the asynq task handlers that drive the indexing
// pipeline in the background.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/queue"
)

// IndexingWorker runs index, reindex and delete tasks against the core
// indexer. Terminal document errors skip asynq's retry loop; infrastructure
// failures and lease contention are retried.
type IndexingWorker struct {
	indexer *indexer.Indexer
}

func NewIndexingWorker(idx *indexer.Indexer) *IndexingWorker {
	return &IndexingWorker{indexer: idx}
}

func (w *IndexingWorker) HandleIndex(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("indexing document", "document_id", payload.DocumentID)
	res, err := w.indexer.Index(ctx, payload.DocumentID)
	if err != nil {
		return classify(payload.DocumentID, err)
	}
	slog.Info("document indexed", "document_id", payload.DocumentID, "chunks", res.ChunkCount)
	return nil
}

func (w *IndexingWorker) HandleReindex(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentReindexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("reindexing document", "document_id", payload.DocumentID)
	res, err := w.indexer.Reindex(ctx, payload.DocumentID)
	if err != nil {
		return classify(payload.DocumentID, err)
	}
	slog.Info("document reindexed", "document_id", payload.DocumentID, "chunks", res.ChunkCount)
	return nil
}

func (w *IndexingWorker) HandleDelete(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentDeletePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("deleting document", "document_id", payload.DocumentID)
	if err := w.indexer.Delete(ctx, payload.DocumentID); err != nil {
		if errors.Is(err, indexer.ErrDocumentNotFound) {
			slog.Warn("document already gone", "document_id", payload.DocumentID)
			return nil
		}
		return classify(payload.DocumentID, err)
	}
	return nil
}

// classify decides retry behavior. Documents that cannot be parsed or fail
// validation will fail the same way every attempt, so retrying is pointless.
// Lease contention and backend outages are transient.
func classify(docID string, err error) error {
	var perr *indexer.ProcessingError
	if errors.As(err, &perr) ||
		errors.Is(err, indexer.ErrInvalidDocument) ||
		errors.Is(err, indexer.ErrDocumentNotFound) {
		return fmt.Errorf("document %s: %v: %w", docID, err, asynq.SkipRetry)
	}
	return fmt.Errorf("document %s: %w", docID, err)
}
