package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory Store used in tests and local
// development. Behavior mirrors the pgvector adapter: cosine distance,
// text-compared metadata filters, recency order for nil queries.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]string
	records     map[string][]Record // collection -> insertion-ordered records
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]string),
		records:     make(map[string][]Record),
	}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, name string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = metadata
	}
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = nil
	}
	for _, rec := range records {
		replaced := false
		for i, existing := range s.records[collection] {
			if existing.ID == rec.ID {
				s.records[collection][i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			s.records[collection] = append(s.records[collection], rec)
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records[collection] {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) Search(_ context.Context, collection string, query []float32, opts SearchOptions) ([]Hit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for _, rec := range s.records[collection] {
		if !Matches(opts.Filter, rec.Metadata) {
			continue
		}
		var dist float64
		if query != nil {
			dist = cosineDistance(query, rec.Embedding)
		}
		hits = append(hits, Hit{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Distance: dist,
		})
	}

	if query == nil {
		// Recency order: newest inserts first.
		for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
			hits[i], hits[j] = hits[j], hits[i]
		}
	} else {
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].Distance < hits[j].Distance
		})
	}

	if opts.Offset >= len(hits) {
		return nil, nil
	}
	hits = hits[opts.Offset:]
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (s *MemoryStore) Count(_ context.Context, collection string, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records[collection] {
		if Matches(filter, rec.Metadata) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[collection][:0]
	for _, rec := range s.records[collection] {
		if !Matches(filter, rec.Metadata) {
			kept = append(kept, rec)
		}
	}
	s.records[collection] = kept
	return nil
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, collection string, filter Filter, patch map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records[collection] {
		if !Matches(filter, rec.Metadata) {
			continue
		}
		merged := make(map[string]interface{}, len(rec.Metadata)+len(patch))
		for k, v := range rec.Metadata {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		s.records[collection][i].Metadata = merged
	}
	return nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
