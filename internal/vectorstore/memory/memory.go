package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"notesqa/internal/domain"
)

var (
	ErrInvalidDimension  = errors.New("invalid dimension")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Storage is a flat in-memory index: every query is a brute-force scan
// using squared Euclidean distance.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	ids       []int
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return ErrInvalidDimension
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.ids = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return ErrDimensionMismatch
		}
	}
	for i, ch := range chunks {
		s.ids = append(s.ids, ch.Index)
		s.vectors = append(s.vectors, append([]float64(nil), vectors[i]...))
	}
	return nil
}

// Search returns up to topK neighbours ordered by ascending distance. Equal
// distances keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, ErrDimensionMismatch
	}
	if topK <= 0 {
		topK = 5
	}
	hits := make([]domain.Neighbor, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = domain.Neighbor{Index: s.ids[i], Distance: squaredL2(v, vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.ids = nil
	return nil
}

// Len returns the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func squaredL2(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
