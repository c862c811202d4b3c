package embedding

import "context"

// Embedder converts free text into numeric vectors, one per input, all of
// the same dimension. Implementations may require a preparation phase over
// the corpus before Embed is called.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
