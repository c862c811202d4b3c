package ollama

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Config configures the Ollama embedder.
type Config struct {
	BaseURL   string
	Model     string
	BatchSize int
}

// Embedder adapts a langchaingo embedder to the Embedder interface.
type Embedder struct {
	inner embeddings.Embedder
	model string
}

// New creates an embedder backed by an Ollama server.
func New(cfg Config) (*Embedder, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating Ollama embedder")
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return NewFromClient(llm, cfg.Model, cfg.BatchSize)
}

// NewFromClient wraps any langchaingo embedding client.
func NewFromClient(client embeddings.EmbedderClient, model string, batchSize int) (*Embedder, error) {
	var opts []embeddings.Option
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	inner, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Embedder{inner: inner, model: model}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "ollama" }

// Prepare is not required for model-based embedding.
func (e *Embedder) Prepare(context.Context, []string) error { return nil }

// Embed returns one vector per text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", e.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	out := make([][]float64, len(vecs))
	for i, v := range vecs {
		f := make([]float64, len(v))
		for j, x := range v {
			f[j] = float64(x)
		}
		out[i] = f
	}
	return out, nil
}
