package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"notesqa/internal/domain"
)

const defaultCollection = "notes"

var errNoEmbeddingFunc = errors.New("chromem store expects precomputed embeddings")

// Storage keeps chunk vectors in an in-process chromem-go collection.
// chromem ranks by cosine similarity over normalised vectors; results are
// reported as the squared Euclidean distance between the unit vectors,
// 2 - 2*similarity, so thresholds stay comparable with the flat store.
type Storage struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	dimension  int
}

// NewStorage creates an empty in-memory chromem database.
func NewStorage(collection string) *Storage {
	if collection == "" {
		collection = defaultCollection
	}
	return &Storage{db: chromem.NewDB(), name: collection}
}

// Init drops any existing collection and creates a fresh one.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dropLocked(); err != nil {
		return err
	}
	c, err := s.db.CreateCollection(s.name, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	s.collection = c
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection == nil {
		return errors.New("collection is required")
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		// cosine ranking is undefined for a zero vector
		if isZero(vectors[i]) {
			log.Warn().Int("chunk", ch.Index).Msg("Skipping chunk with zero embedding")
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      strconv.Itoa(ch.Index),
			Content: ch.Text,
			Metadata: map[string]string{
				"page": strconv.Itoa(ch.Page),
			},
			Embedding: toFloat32(vectors[i]),
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("documents", len(docs)).Str("collection", s.name).Msg("Added documents to chromem")
	return nil
}

// Search returns up to topK neighbours. A zero query vector has no
// direction and matches nothing.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return nil, errors.New("collection is required")
	}
	if len(vector) != s.dimension {
		return nil, errors.New("vector dimension mismatch")
	}
	if topK <= 0 {
		topK = 5
	}
	n := min(topK, s.collection.Count())
	if n == 0 || isZero(vector) {
		return nil, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, toFloat32(vector), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	hits := make([]domain.Neighbor, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", r.ID, err)
		}
		hits = append(hits, domain.Neighbor{Index: idx, Distance: max(0, 2-2*float64(r.Similarity))})
	}
	return hits, nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked()
}

func (s *Storage) dropLocked() error {
	if s.collection == nil {
		return nil
	}
	if err := s.db.DeleteCollection(s.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	s.collection = nil
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
