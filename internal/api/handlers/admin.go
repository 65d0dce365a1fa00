package handlers

import (
	"log/slog"
	"net/http"

	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/queue"
	"github.com/studyhub-platform/studyindexer/internal/storage"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
)

// AdminHandler exposes operator views over the whole index, regardless of
// ownership. Routes using it must sit behind the admin role gate.
type AdminHandler struct {
	trk   tracker.Store
	files storage.Storage
	queue *queue.Client
}

func NewAdminHandler(trk tracker.Store, files storage.Storage, qc *queue.Client) *AdminHandler {
	return &AdminHandler{trk: trk, files: files, queue: qc}
}

func (h *AdminHandler) Documents(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	recs, err := h.trk.List(r.Context(), status)
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": recs,
		"total":     len(recs),
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.trk.StatusCounts(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}

	recs, err := h.trk.List(r.Context(), "")
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}

	byCollection := make(map[string]int)
	totalChunks := 0
	for _, rec := range recs {
		if rec.Status == models.StatusDeleted {
			continue
		}
		byCollection[rec.Metadata.Collection]++
		totalChunks += rec.ChunkCount
	}

	storageBytes, err := h.files.TotalBytes()
	if err != nil {
		slog.Warn("storage size scan failed", "error", err)
		storageBytes = -1
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status_counts":   counts,
		"by_collection":   byCollection,
		"total_chunks":    totalChunks,
		"storage_bytes":   storageBytes,
		"total_documents": len(recs),
	})
}

// Reindex queues documents for reindexing: one document when document_id is
// given, otherwise every completed or failed document. Used after
// embedding-model upgrades.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if docID := r.URL.Query().Get("document_id"); docID != "" {
		rec, err := h.trk.Get(r.Context(), docID)
		if err != nil {
			writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "document not found")
			return
		}
		if err := h.queue.EnqueueDocumentReindex(queue.DocumentReindexPayload{
			DocumentID: rec.DocumentID,
			UserID:     rec.Metadata.UserID,
		}); err != nil {
			slog.Error("enqueue reindex failed", "document_id", docID, "error", err)
			writeErrorCode(w, http.StatusServiceUnavailable, "QUEUE_NOT_AVAILABLE", "could not queue reindex")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"success": true, "queued": 1})
		return
	}

	recs, err := h.trk.List(r.Context(), "")
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}

	queued := 0
	for _, rec := range recs {
		if rec.Status != models.StatusCompleted && rec.Status != models.StatusFailed {
			continue
		}
		if err := h.queue.EnqueueDocumentReindex(queue.DocumentReindexPayload{
			DocumentID: rec.DocumentID,
			UserID:     rec.Metadata.UserID,
		}); err != nil {
			slog.Error("enqueue reindex failed", "document_id", rec.DocumentID, "error", err)
			continue
		}
		queued++
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"queued":  queued,
	})
}
