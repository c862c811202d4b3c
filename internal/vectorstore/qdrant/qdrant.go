package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"notesqa/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// The collection uses Euclid distance and is recreated on every Init, so it
// only ever holds the chunks of the current document.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Collection returns the name of the backing collection.
func (s *Storage) Collection() string { return s.collection }

// Generations hands out one store per index build, each on its own
// collection named <collection>_<n>, so a build never touches the
// collection a live index is searching.
type Generations struct {
	cfg Config
	n   atomic.Int64
}

func NewGenerations(cfg Config) *Generations {
	return &Generations{cfg: cfg}
}

// Next returns a store on a fresh collection.
func (g *Generations) Next() *Storage {
	cfg := g.cfg
	cfg.Collection = fmt.Sprintf("%s_%d", cfg.Collection, g.n.Add(1))
	return NewStorage(cfg)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Euclid",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":     chunks[i].Index,
			"vector": vectors[i],
			"payload": map[string]any{
				"index": chunks[i].Index,
				"page":  chunks[i].Page,
				"text":  chunks[i].Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil); err != nil {
		return err
	}
	log.Debug().Int("points", len(points)).Str("collection", s.collection).Msg("Upserted points to qdrant")
	return nil
}

// Search returns up to topK neighbours. Qdrant reports the Euclidean
// distance as the score; it is squared here.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Neighbor, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": false,
	}
	var resp struct {
		Result []struct {
			ID    json.Number `json:"id"`
			Score float64     `json:"score"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.Neighbor, 0, len(resp.Result))
	for _, r := range resp.Result {
		idx, err := r.ID.Int64()
		if err != nil {
			return nil, fmt.Errorf("unexpected qdrant point id %q: %w", r.ID, err)
		}
		hits = append(hits, domain.Neighbor{Index: int(idx), Distance: r.Score * r.Score})
	}
	return hits, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

type statusError struct {
	method string
	url    string
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
