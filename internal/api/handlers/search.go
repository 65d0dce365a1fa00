package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/search"
	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

type SearchHandler struct {
	idx *indexer.Indexer
}

func NewSearchHandler(idx *indexer.Indexer) *SearchHandler {
	return &SearchHandler{idx: idx}
}

type searchRequest struct {
	Text       string            `json:"text"`
	Collection string            `json:"collection,omitempty"`
	CourseID   string            `json:"course_id,omitempty"`
	Page       int               `json:"page,omitempty"`
	PageSize   int               `json:"page_size,omitempty"`
	MinScore   float64           `json:"min_score,omitempty"`
	Filters    map[string]string `json:"filters,omitempty"`
}

type pagination struct {
	CurrentPage  int  `json:"current_page"`
	PageSize     int  `json:"page_size"`
	TotalPages   int  `json:"total_pages"`
	TotalResults int  `json:"total_results"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
}

type searchResponse struct {
	Success        bool                   `json:"success"`
	Results        []indexer.SearchResult `json:"results"`
	Pagination     pagination             `json:"pagination"`
	QueryTimeMs    int64                  `json:"query_time_ms"`
	Collection     string                 `json:"collection,omitempty"`
	FiltersApplied map[string]string      `json:"filters_applied,omitempty"`
}

// Search runs an access-scoped semantic search. Course-enrollment scoping is
// applied as a metadata filter; personal collections are scoped structurally
// by always resolving to the caller's own collection.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "min_score must be between 0 and 1")
		return
	}

	if req.Collection == models.CollectionCourse && !id.EnrolledIn(req.CourseID) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "not enrolled in course")
		return
	}
	// Physical collection names are internal; callers address personal and
	// course collections through their logical names.
	if id.Role != auth.RoleAdmin && id.Role != auth.RoleTeacher &&
		(strings.HasPrefix(req.Collection, "personal_") || strings.HasPrefix(req.Collection, "course_")) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "collection not accessible")
		return
	}

	var base vectorstore.Filter
	if len(req.Filters) > 0 {
		var conj vectorstore.And
		for field, value := range req.Filters {
			conj = append(conj, vectorstore.Eq{Field: field, Value: value})
		}
		base = conj
	}

	start := time.Now()
	total, results, err := h.idx.Search(r.Context(), indexer.SearchRequest{
		Query:      req.Text,
		Offset:     (req.Page - 1) * req.PageSize,
		Limit:      req.PageSize,
		Filter:     search.ScopedFilter(id, base),
		Collection: req.Collection,
		UserID:     id.UserID,
		CourseID:   req.CourseID,
		MinScore:   req.MinScore,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if results == nil {
		results = []indexer.SearchResult{}
	}
	totalPages := (total + req.PageSize - 1) / req.PageSize

	writeJSON(w, http.StatusOK, searchResponse{
		Success: true,
		Results: results,
		Pagination: pagination{
			CurrentPage:  req.Page,
			PageSize:     req.PageSize,
			TotalPages:   totalPages,
			TotalResults: total,
			HasNext:      req.Page < totalPages,
			HasPrevious:  req.Page > 1,
		},
		QueryTimeMs:    time.Since(start).Milliseconds(),
		Collection:     req.Collection,
		FiltersApplied: req.Filters,
	})
}

// Similar returns documents related to the given one by embedding proximity.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	docID := chi.URLParam(r, "id")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	minScore, _ := strconv.ParseFloat(r.URL.Query().Get("min_score"), 64)

	rec, err := h.idx.GetStatus(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canView(id, rec) {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "no access to this document")
		return
	}

	start := time.Now()
	total, results, err := h.idx.Similar(r.Context(), docID, limit, minScore)
	if err != nil {
		writeError(w, err)
		return
	}

	if results == nil {
		results = []indexer.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"document_id":   docID,
		"results":       results,
		"total":         total,
		"query_time_ms": time.Since(start).Milliseconds(),
	})
}
