package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

const (
	defaultSearchLimit = 10
	maxFetchLimit      = 200
)

// SearchRequest describes one similarity query. An empty Query means
// match-all and is used for listing.
type SearchRequest struct {
	Query      string
	Offset     int
	Limit      int
	Filter     vectorstore.Filter
	Collection string // logical collection name
	UserID     string
	CourseID   string
	MinScore   float64
}

// SearchResult is one ranked hit with a bounded similarity score in (0,1].
type SearchResult struct {
	DocumentID string                 `json:"document_id"`
	ChunkID    string                 `json:"chunk_id"`
	Score      float64                `json:"score"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Highlights []string               `json:"highlight,omitempty"`
}

// Search embeds the query, runs a filtered, paginated similarity search and
// converts distances into scores. The total count is best-effort: a count
// failure degrades to 0, never fails the search.
func (i *Indexer) Search(ctx context.Context, req SearchRequest) (int, []SearchResult, error) {
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	collection := ResolveCollection(req.Collection, req.UserID, req.CourseID, i.cfg.DefaultCollection)

	var queryVec []float32
	if req.Query != "" {
		vec, err := i.embedder.Encode(ctx, req.Query)
		if err != nil {
			return 0, nil, &SearchError{Query: req.Query,
				Err: newIndexerError(CodeMLNotAvailable, "embed query", err)}
		}
		queryVec = vec
	}

	filter := req.Filter
	if filter == nil {
		// Exclude any malformed rows lacking document linkage.
		filter = vectorstore.Exists{Field: "document_id"}
	}

	total, err := i.store.Count(ctx, collection, filter)
	if err != nil {
		slog.Warn("match count failed, degrading to 0",
			"collection", collection, "error", err)
		total = 0
	}

	fetchLimit := req.Limit
	if req.MinScore > 0 {
		// Over-fetch so below-threshold hits don't shrink the page.
		fetchLimit = req.Limit * 3
		if fetchLimit > maxFetchLimit {
			fetchLimit = maxFetchLimit
		}
	}

	hits, err := i.store.Search(ctx, collection, queryVec, vectorstore.SearchOptions{
		Limit:  fetchLimit,
		Offset: req.Offset,
		Filter: filter,
	})
	if err != nil {
		return 0, nil, &SearchError{Query: req.Query,
			Err: newIndexerError(CodeVectorStoreDown, "similarity search", err)}
	}

	results := i.convertHits(hits, req.Query, req.MinScore, req.Limit)
	return total, results, nil
}

// Similar finds chunks similar to the document's own first chunk, excluding
// the document itself.
func (i *Indexer) Similar(ctx context.Context, docID string, limit int, minScore float64) (int, []SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rec, err := i.getRecord(ctx, docID)
	if err != nil {
		return 0, nil, err
	}

	collection := i.collectionFor(rec.Metadata)
	seed, err := i.store.Get(ctx, collection, fmt.Sprintf("%s_chunk_0", docID))
	if err != nil {
		return 0, nil, &SearchError{Query: docID,
			Err: fmt.Errorf("seed chunk: %w", err)}
	}

	filter := vectorstore.And{
		vectorstore.Exists{Field: "document_id"},
		vectorstore.Ne{Field: "document_id", Value: docID},
	}

	total, err := i.store.Count(ctx, collection, filter)
	if err != nil {
		slog.Warn("match count failed, degrading to 0",
			"collection", collection, "error", err)
		total = 0
	}

	fetchLimit := limit
	if minScore > 0 {
		fetchLimit = limit * 3
		if fetchLimit > maxFetchLimit {
			fetchLimit = maxFetchLimit
		}
	}

	hits, err := i.store.Search(ctx, collection, seed.Embedding, vectorstore.SearchOptions{
		Limit:  fetchLimit,
		Filter: filter,
	})
	if err != nil {
		return 0, nil, &SearchError{Query: docID,
			Err: newIndexerError(CodeVectorStoreDown, "similarity search", err)}
	}

	results := i.convertHits(hits, "", minScore, limit)
	return total, results, nil
}

func (i *Indexer) convertHits(hits []vectorstore.Hit, query string, minScore float64, limit int) []SearchResult {
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		score := 1 / (1 + h.Distance)
		if minScore > 0 && score < minScore {
			continue
		}

		docID, _ := h.Metadata["document_id"].(string)
		res := SearchResult{
			DocumentID: docID,
			ChunkID:    h.ID,
			Score:      score,
			Content:    h.Content,
			Metadata:   h.Metadata,
		}
		if query != "" {
			res.Highlights = Highlight(h.Content, query)
		}
		results = append(results, res)

		if len(results) == limit {
			break
		}
	}
	return results
}
