package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studyhub-platform/studyindexer/internal/models"
)

// MemoryStore is an in-process Store used in tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*models.StatusRecord
	leases   map[string]time.Time
	leaseTTL time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*models.StatusRecord),
		leases:   make(map[string]time.Time),
		leaseTTL: time.Hour,
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *models.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.DocumentID]; ok {
		return fmt.Errorf("document %s: %w", rec.DocumentID, ErrExists)
	}
	cp := *rec
	s.records[rec.DocumentID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, upd Update) (*models.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err := apply(rec, upd, time.Now().UTC()); err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, status models.Status) ([]*models.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.StatusRecord
	for _, rec := range s.records {
		if status != "" && rec.Status != status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkDeleted(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, Update{Status: models.StatusDeleted})
	return err
}

func (s *MemoryStore) StatusCounts(_ context.Context) (map[models.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.Status]int64)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, ok := s.leases[id]; ok && time.Now().Before(until) {
		return false, nil
	}
	s.leases[id] = time.Now().Add(s.leaseTTL)
	return true, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, id)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	failed := 0
	for id, rec := range s.records {
		if rec.Status != models.StatusProcessing || rec.UpdatedAt.After(cutoff) {
			continue
		}
		rec.Status = models.StatusFailed
		rec.Error = "indexing timed out"
		rec.UpdatedAt = time.Now().UTC()
		delete(s.leases, id)
		failed++
	}
	return failed, nil
}
