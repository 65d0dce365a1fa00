package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/queue"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
)

type DocumentHandler struct {
	idx     *indexer.Indexer
	trk     tracker.Store
	queue   *queue.Client
	maxForm int64
}

func NewDocumentHandler(idx *indexer.Indexer, trk tracker.Store, qc *queue.Client, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{idx: idx, trk: trk, queue: qc, maxForm: maxUpload}
}

// Upload accepts a multipart file with metadata form fields, stores it and
// queues background indexing. The response arrives before any chunking or
// embedding happens.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	if err := r.ParseMultipartForm(h.maxForm); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "file required")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	meta := models.DocumentMetadata{
		Title:        title,
		Author:       r.FormValue("author"),
		CourseID:     r.FormValue("course_id"),
		DocumentType: r.FormValue("document_type"),
		Collection:   r.FormValue("collection"),
		Tags:         splitTags(r.FormValue("tags")),
	}

	if meta.Collection == models.CollectionCourse && !id.EnrolledIn(meta.CourseID) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "not enrolled in course")
		return
	}

	rec, err := h.idx.Prepare(r.Context(), indexer.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	}, meta, id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.queue.EnqueueDocumentIndex(queue.DocumentIndexPayload{
		DocumentID: rec.DocumentID,
		UserID:     id.UserID,
	}); err != nil {
		slog.Error("enqueue indexing failed", "document_id", rec.DocumentID, "error", err)
		writeErrorCode(w, http.StatusServiceUnavailable, "QUEUE_NOT_AVAILABLE", "could not queue indexing")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":     true,
		"document_id": rec.DocumentID,
		"status":      rec.Status,
		"message":     "document queued for indexing",
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	status := models.Status(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	recs, err := h.trk.List(r.Context(), status)
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}

	visible := make([]*models.StatusRecord, 0, len(recs))
	for _, rec := range recs {
		if canView(id, rec) {
			visible = append(visible, rec)
		}
	}

	total := len(visible)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": visible[offset:end],
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.Status(w, r)
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	rec, err := h.idx.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !canView(id, rec) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "no access to this document")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	docID := chi.URLParam(r, "id")

	rec, err := h.idx.GetStatus(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !id.CanManage(rec.Metadata.UserID) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "only the owner may reindex")
		return
	}

	if err := h.queue.EnqueueDocumentReindex(queue.DocumentReindexPayload{
		DocumentID: docID,
		UserID:     id.UserID,
	}); err != nil {
		slog.Error("enqueue reindex failed", "document_id", docID, "error", err)
		writeErrorCode(w, http.StatusServiceUnavailable, "QUEUE_NOT_AVAILABLE", "could not queue reindex")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":     true,
		"document_id": docID,
		"message":     "document queued for reindexing",
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	docID := chi.URLParam(r, "id")

	rec, err := h.idx.GetStatus(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !id.CanManage(rec.Metadata.UserID) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "only the owner may delete")
		return
	}

	if err := h.queue.EnqueueDocumentDelete(queue.DocumentDeletePayload{
		DocumentID: docID,
		UserID:     id.UserID,
	}); err != nil {
		slog.Error("enqueue delete failed", "document_id", docID, "error", err)
		writeErrorCode(w, http.StatusServiceUnavailable, "QUEUE_NOT_AVAILABLE", "could not queue deletion")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":     true,
		"document_id": docID,
		"message":     "document queued for deletion",
	})
}

func (h *DocumentHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	docID := chi.URLParam(r, "id")

	rec, err := h.idx.GetStatus(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !id.CanManage(rec.Metadata.UserID) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "only the owner may update metadata")
		return
	}

	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}

	updated, err := h.idx.UpdateMetadata(r.Context(), docID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// canView mirrors the search scoping rule: admins and teachers see
// everything, students see their own uploads, their courses' documents, and
// anything without a course.
func canView(id auth.Identity, rec *models.StatusRecord) bool {
	if id.Role == auth.RoleAdmin || id.Role == auth.RoleTeacher {
		return true
	}
	if rec.Metadata.UserID == id.UserID {
		return true
	}
	if rec.Metadata.Collection == models.CollectionPersonal {
		return false
	}
	if rec.Metadata.CourseID == "" {
		return true
	}
	return id.EnrolledIn(rec.Metadata.CourseID)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
