package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"notesqa/internal/chunker"
	"notesqa/internal/concepts"
	"notesqa/internal/domain"
	"notesqa/internal/extract"
	"notesqa/internal/index"
	"notesqa/internal/qa"
	"notesqa/internal/summarizer"
)

const (
	MsgNotProcessed = "Please upload and process lecture notes first."
	MsgNotFound     = "This concept was not found in the lecture notes. Please try a different question or check your spelling."
)

// ErrEmptyDocument is returned when a document yields no chunks.
var ErrEmptyDocument = errors.New("document contains no text")

// Config holds the answer thresholds and chunking parameters.
type Config struct {
	TopK          int
	MaxDistance   float64
	MinConfidence float64
	ContextChars  int

	ChunkSize    int
	PreviewChars int

	// HighlightSentences is the number of key sentences reported per
	// ingestion; zero disables them.
	HighlightSentences int

	// ResetConceptsOnIngest clears the concept table before each ingestion
	// instead of accumulating page lists across documents.
	ResetConceptsOnIngest bool
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		MaxDistance:   1.0,
		MinConfidence: 0.2,
		ContextChars:  300,
		ChunkSize:     chunker.DefaultChunkSize,
		PreviewChars:  chunker.DefaultPreviewChars,

		HighlightSentences: 3,
	}
}

// IngestSummary describes a processed document.
type IngestSummary struct {
	Pages      int                    `json:"pages"`
	Chunks     int                    `json:"chunks"`
	Concepts   int                    `json:"concepts"`
	Highlights []summarizer.Highlight `json:"highlights,omitempty"`
}

// Session owns the state of one question-answering session: the chunks of
// the last processed document, their search index and the concept table.
type Session struct {
	cfg        Config
	newIndex   func() *index.Index
	answerer   *qa.Adapter
	summarizer *summarizer.Summarizer

	mu       sync.RWMutex
	chunks   []domain.Chunk
	index    *index.Index
	concepts *concepts.Table
}

// NewSession creates an empty session. newIndex is called once per
// ingestion so a fresh index can be built while the old one keeps serving;
// every index it returns must own its storage, since the replaced index is
// reset after the swap.
func NewSession(cfg Config, newIndex func() *index.Index, answerer *qa.Adapter) *Session {
	return &Session{
		cfg:        cfg,
		newIndex:   newIndex,
		answerer:   answerer,
		summarizer: summarizer.New(),
		concepts:   concepts.NewTable(),
	}
}

// ProcessDocument extracts the pages of the file at path and ingests them.
func (s *Session) ProcessDocument(ctx context.Context, path string) (IngestSummary, error) {
	pages, err := extract.File(path)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("extract %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("pages", len(pages)).Msg("Extracted document")
	return s.ProcessPages(ctx, pages)
}

// ProcessPages chunks pages (page 1 first), indexes the chunks and replaces
// the session's chunks and index. On error the previous state is kept.
func (s *Session) ProcessPages(ctx context.Context, pages []string) (IngestSummary, error) {
	found := concepts.NewTable()
	pc := chunker.NewPageChunker(s.cfg.ChunkSize, s.cfg.PreviewChars, found)
	chunks, err := pc.ChunkPages(pages)
	if err != nil {
		return IngestSummary{}, err
	}
	if len(chunks) == 0 {
		return IngestSummary{}, ErrEmptyDocument
	}
	highlights := s.summarizer.Highlights(chunks, s.cfg.HighlightSentences)
	ix := s.newIndex()
	if err := ix.Build(ctx, chunks); err != nil {
		// drop whatever the failed build left in its store
		if rerr := ix.Reset(ctx); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to clean up after index build error")
		}
		return IngestSummary{}, err
	}

	s.mu.Lock()
	if s.cfg.ResetConceptsOnIngest {
		s.concepts.Reset()
	}
	s.concepts.Merge(found)
	s.chunks = chunks
	old := s.index
	s.index = ix
	sum := IngestSummary{Pages: len(pages), Chunks: len(chunks), Concepts: s.concepts.Len(), Highlights: highlights}
	s.mu.Unlock()

	// queries hold the read lock for their whole run, so nothing still
	// searches the replaced index
	if old != nil {
		if err := old.Reset(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to release previous index")
		}
	}
	log.Info().Int("chunks", sum.Chunks).Int("concepts", sum.Concepts).Msg("Processed document")
	return sum, nil
}

// AskQuestion answers question from the closest chunk, falling back to the
// concepts the question mentions when the answer is not confident enough.
func (s *Session) AskQuestion(ctx context.Context, question string) domain.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return domain.ErrorResponse(MsgNotProcessed)
	}
	hits, err := s.index.Search(ctx, question, s.cfg.TopK)
	if errors.Is(err, index.ErrNotInitialized) {
		return domain.ErrorResponse(MsgNotProcessed)
	}
	if err != nil {
		log.Error().Err(err).Msg("Search failed")
		return domain.ErrorResponse("Searching the lecture notes failed. Please try again.")
	}

	best := -1
	for i, h := range hits {
		if h.Distance >= s.cfg.MaxDistance || h.Index < 0 || h.Index >= len(s.chunks) {
			continue
		}
		if best < 0 || h.Distance < hits[best].Distance {
			best = i
		}
	}
	if best < 0 {
		return domain.NotFound(MsgNotFound)
	}
	chunk := s.chunks[hits[best].Index]
	log.Debug().Int("chunk", chunk.Index).Int("page", chunk.Page).Float64("distance", hits[best].Distance).Msg("Best chunk")

	res := s.answerer.Answer(ctx, question, chunk.Text)
	if res.Score < s.cfg.MinConfidence {
		return s.lowConfidence(question, res)
	}
	return domain.Response{
		Kind:       domain.KindAnswer,
		Answer:     res.Answer,
		Confidence: res.Score,
		Page:       chunk.Page,
		Context:    chunker.Truncate(chunk.Text, s.cfg.ContextChars),
	}
}

func (s *Session) lowConfidence(question string, res qa.Result) domain.Response {
	var reason string
	if res.Failed() {
		reason = domain.ReasonQAUnavailable
	}
	matched := s.concepts.MatchQuestion(question)
	if len(matched) == 0 {
		r := domain.NotFound(MsgNotFound)
		r.Reason = reason
		return r
	}
	names := make([]string, 0, len(matched))
	for _, k := range s.concepts.Keys() {
		if _, ok := matched[k]; ok {
			names = append(names, k)
		}
	}
	return domain.Response{
		Kind:     domain.KindConceptReference,
		Message:  fmt.Sprintf("The concept(s) '%s' appear in your notes but I couldn't find a direct answer to your question.", strings.Join(names, ", ")),
		Reason:   reason,
		Concepts: matched,
	}
}

// ConceptReferences looks concept up by exact, case-sensitive name.
func (s *Session) ConceptReferences(concept string) domain.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages, ok := s.concepts.Pages(concept)
	if !ok {
		return domain.NotFound(fmt.Sprintf("The concept '%s' was not found in the lecture notes.", concept))
	}
	return domain.Response{Kind: domain.KindConceptReference, Concept: concept, Pages: pages}
}

// Concepts returns the concept names in first-seen order with a copy of
// their pages.
func (s *Session) Concepts() ([]string, domain.ConceptPages) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.concepts.Keys(), s.concepts.Snapshot()
}

// Chunks returns a copy of the current chunks.
func (s *Session) Chunks() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...)
}

// Reset forgets the processed document and every concept.
func (s *Session) Reset() {
	s.mu.Lock()
	old := s.index
	s.chunks = nil
	s.index = nil
	s.concepts.Reset()
	s.mu.Unlock()
	if old != nil {
		if err := old.Reset(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to release index")
		}
	}
}
