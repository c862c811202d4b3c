package vectorstore

import (
	"context"

	"notesqa/internal/domain"
)

// Storage holds one vector per chunk and answers nearest-neighbour queries.
// Distances are squared Euclidean, ascending.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.Neighbor, error)
	Clear(ctx context.Context) error
}
