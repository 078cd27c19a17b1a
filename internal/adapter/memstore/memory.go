package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"imgsearch/internal/domain"
	"imgsearch/internal/port"
)

// MemoryStore is an in-process ImageStore. It holds every record in memory
// and is meant for tests and throwaway indexes.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   []domain.ImageRecord // insertion order
	byPath    map[string]int
	closed    bool
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		byPath:    make(map[string]int),
	}
}

func (s *MemoryStore) InsertOrIgnore(ctx context.Context, records []domain.ImageRecord) (int, error) {
	for _, r := range records {
		if r.Path == "" {
			return 0, fmt.Errorf("%w: record with empty path", domain.ErrInvalidConfig)
		}
		if len(r.Embedding) != s.dimension {
			return 0, fmt.Errorf("%w: record %s has %d values, store dimension is %d", domain.ErrDimensionMismatch, r.Path, len(r.Embedding), s.dimension)
		}
		if !domain.IsUnit(r.Embedding) {
			return 0, fmt.Errorf("%w: record %s is not unit length", domain.ErrInvalidConfig, r.Path)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: store closed", domain.ErrStore)
	}

	inserted := 0
	for _, r := range records {
		if _, ok := s.byPath[r.Path]; ok {
			continue
		}
		r.ID = uint64(len(s.records) + 1)
		r.Embedding = append([]float32(nil), r.Embedding...)
		s.byPath[r.Path] = len(s.records)
		s.records = append(s.records, r)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) NearestNeighbors(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d values, store dimension is %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}
	if !domain.IsUnit(query) {
		return nil, fmt.Errorf("%w: query is not unit length", domain.ErrInvalidConfig)
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", domain.ErrStore)
	}

	matches := make([]domain.Match, len(s.records))
	for i, r := range s.records {
		matches[i] = domain.Match{Path: r.Path, Distance: domain.CosineDistance(query, r.Embedding)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns the record stored for path.
func (s *MemoryStore) Get(path string) (domain.ImageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byPath[path]
	if !ok {
		return domain.ImageRecord{}, false
	}
	return s.records[i], true
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Dimension() int {
	return s.dimension
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ port.ImageStore = (*MemoryStore)(nil)
