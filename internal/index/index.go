package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"notesqa/internal/domain"
	"notesqa/internal/embedding"
	"notesqa/internal/vectorstore"
)

var (
	// ErrNotInitialized is returned by Search before a successful Build.
	ErrNotInitialized = errors.New("search index not initialized")
	ErrNoChunks       = errors.New("no chunks to index")
)

// Index embeds chunks with an Embedder and serves nearest-neighbour queries
// from a vectorstore.Storage. Vector i belongs to chunk i.
type Index struct {
	embedder embedding.Embedder
	store    vectorstore.Storage

	mu    sync.RWMutex
	built bool
	size  int
}

// New creates an unbuilt index.
func New(embedder embedding.Embedder, store vectorstore.Storage) *Index {
	return &Index{embedder: embedder, store: store}
}

// Build encodes every chunk and (re)loads the store. On failure the index
// is left unbuilt.
func (ix *Index) Build(ctx context.Context, chunks []domain.Chunk) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.built = false
	if len(chunks) == 0 {
		return ErrNoChunks
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := ix.embedder.Prepare(ctx, texts); err != nil {
		return fmt.Errorf("prepare %s embedder: %w", ix.embedder.Name(), err)
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	if err := ix.store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	if err := ix.store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	ix.built = true
	ix.size = len(chunks)
	log.Info().Int("chunks", len(chunks)).Int("dimension", dim).Str("embedder", ix.embedder.Name()).Msg("Built search index")
	return nil
}

// Search returns at most k neighbours of query in ascending distance.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.Neighbor, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.built {
		return nil, ErrNotInitialized
	}
	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for the query", len(vecs))
	}
	hits, err := ix.store.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	if len(hits) > k && k > 0 {
		hits = hits[:k]
	}
	return hits, nil
}

// Built reports whether Search can be served.
func (ix *Index) Built() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.built
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}

// Reset drops the stored vectors and marks the index unbuilt.
func (ix *Index) Reset(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.built = false
	ix.size = 0
	return ix.store.Clear(ctx)
}
