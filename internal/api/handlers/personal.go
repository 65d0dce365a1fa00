package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
)

// PersonalHandler serves the caller's private document space: folder
// browsing, favorites, importance and free-text filtering over the status
// records.
type PersonalHandler struct {
	idx *indexer.Indexer
	trk tracker.Store
}

func NewPersonalHandler(idx *indexer.Indexer, trk tracker.Store) *PersonalHandler {
	return &PersonalHandler{idx: idx, trk: trk}
}

func (h *PersonalHandler) list(r *http.Request) ([]*models.StatusRecord, error) {
	id, _ := auth.IdentityFromContext(r.Context())

	recs, err := h.trk.List(r.Context(), "")
	if err != nil {
		return nil, err
	}

	var mine []*models.StatusRecord
	for _, rec := range recs {
		if rec.Status == models.StatusDeleted {
			continue
		}
		if rec.Metadata.Collection == models.CollectionPersonal && rec.Metadata.UserID == id.UserID {
			mine = append(mine, rec)
		}
	}
	return mine, nil
}

func (h *PersonalHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	mine, err := h.list(r)
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}

	q := r.URL.Query()
	folder := q.Get("folder")
	favorite := q.Get("favorite") == "true"
	importanceMin, _ := strconv.Atoi(q.Get("importance_min"))
	tag := q.Get("tag")
	text := strings.ToLower(q.Get("q"))

	filtered := make([]*models.StatusRecord, 0, len(mine))
	for _, rec := range mine {
		p := rec.Metadata.Personal
		if p == nil {
			continue
		}
		if folder != "" && !strings.HasPrefix(p.FolderPath, folder) {
			continue
		}
		if favorite && !p.IsFavorite {
			continue
		}
		if importanceMin > 0 && p.Importance < importanceMin {
			continue
		}
		if tag != "" && !hasTag(rec.Metadata.Tags, tag) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(rec.Metadata.Title), text) {
			continue
		}
		filtered = append(filtered, rec)
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	total := len(filtered)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": filtered[offset:end],
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// Folders returns the caller's folder tree as a flat path -> document count
// map.
func (h *PersonalHandler) Folders(w http.ResponseWriter, r *http.Request) {
	mine, err := h.list(r)
	if err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "TRACKER_NOT_AVAILABLE", "status store unavailable")
		return
	}

	counts := make(map[string]int)
	for _, rec := range mine {
		if rec.Metadata.Personal != nil {
			counts[rec.Metadata.Personal.FolderPath]++
		}
	}

	paths := make([]string, 0, len(counts))
	for p := range counts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	type folder struct {
		Path  string `json:"path"`
		Count int    `json:"count"`
	}
	folders := make([]folder, len(paths))
	for i, p := range paths {
		folders[i] = folder{Path: p, Count: counts[p]}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

// UpdateMetadata patches the personal fields of one of the caller's
// documents. Unknown fields in the body are rejected by the JSON decode into
// the typed struct below.
func (h *PersonalHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	docID := chi.URLParam(r, "id")

	rec, err := h.idx.GetStatus(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Metadata.Collection != models.CollectionPersonal || rec.Metadata.UserID != id.UserID {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "not your personal document")
		return
	}

	var patch struct {
		FolderPath   *string           `json:"folder_path"`
		IsFavorite   *bool             `json:"is_favorite"`
		Importance   *int              `json:"importance"`
		SourceURL    *string           `json:"source_url"`
		RelatedDocs  []string          `json:"related_docs"`
		CustomFields map[string]string `json:"custom_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	personal := models.PersonalMetadata{FolderPath: "/", Importance: 3}
	if rec.Metadata.Personal != nil {
		personal = *rec.Metadata.Personal
	}
	if patch.FolderPath != nil {
		personal.FolderPath = *patch.FolderPath
	}
	if patch.IsFavorite != nil {
		personal.IsFavorite = *patch.IsFavorite
	}
	if patch.Importance != nil {
		personal.Importance = *patch.Importance
	}
	if patch.SourceURL != nil {
		personal.SourceURL = *patch.SourceURL
	}
	if patch.RelatedDocs != nil {
		personal.RelatedDocs = patch.RelatedDocs
	}
	if patch.CustomFields != nil {
		personal.CustomFields = patch.CustomFields
	}

	updated, err := h.idx.UpdateMetadata(r.Context(), docID, map[string]interface{}{
		"personal": personal,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Related returns the documents the owner explicitly linked, plus
// embedding-similar documents.
func (h *PersonalHandler) Related(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	docID := chi.URLParam(r, "id")

	rec, err := h.idx.GetStatus(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Metadata.Collection != models.CollectionPersonal || rec.Metadata.UserID != id.UserID {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "not your personal document")
		return
	}

	var linked []*models.StatusRecord
	if rec.Metadata.Personal != nil {
		for _, relID := range rec.Metadata.Personal.RelatedDocs {
			rel, err := h.idx.GetStatus(r.Context(), relID)
			if err != nil {
				continue
			}
			linked = append(linked, rel)
		}
	}

	_, similar, err := h.idx.Similar(r.Context(), docID, 5, 0)
	if err != nil {
		similar = nil
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": docID,
		"linked":      linked,
		"similar":     similar,
	})
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
