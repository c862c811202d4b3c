package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"notesqa/internal/domain"
	"notesqa/internal/embedding/tfidf"
	"notesqa/internal/index"
	"notesqa/internal/qa"
	"notesqa/internal/qa/lexical"
	"notesqa/internal/vectorstore"
	"notesqa/internal/vectorstore/memory"
)

// fixedEmbedder maps every chunk to chunkVec and every other text to queryVec.
type fixedEmbedder struct {
	chunkVec []float64
	queryVec []float64
	corpus   map[string]bool
}

func (e *fixedEmbedder) Name() string { return "fixed" }

func (e *fixedEmbedder) Prepare(_ context.Context, corpus []string) error {
	e.corpus = make(map[string]bool, len(corpus))
	for _, c := range corpus {
		e.corpus[c] = true
	}
	return nil
}

func (e *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if e.corpus[t] {
			out[i] = e.chunkVec
		} else {
			out[i] = e.queryVec
		}
	}
	return out, nil
}

type stubQA struct {
	span qa.Span
	err  error
}

func (stubQA) Name() string { return "stub" }

func (m stubQA) Extract(context.Context, string, string) (qa.Span, error) {
	return m.span, m.err
}

func newSession(cfg Config, emb func() *fixedEmbedder, model qa.Model) *Session {
	return NewSession(cfg, func() *index.Index {
		return index.New(emb(), memory.NewStorage())
	}, qa.NewAdapter(model, ""))
}

func nearEmbedder() *fixedEmbedder {
	return &fixedEmbedder{chunkVec: []float64{1, 0}, queryVec: []float64{1, 0.1}}
}

func TestAskBeforeIngestion(t *testing.T) {
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{})
	r := s.AskQuestion(context.Background(), "anything?")
	if r.Kind != domain.KindError || r.Message != MsgNotProcessed {
		t.Fatalf("unexpected response %+v", r)
	}
}

func TestLowConfidenceFallsBackToConcepts(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{span: qa.Span{Answer: "page one", Score: 0.05}})
	if _, err := s.ProcessPages(ctx, []string{"The Quantum Field appears on page one and nowhere else"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	r := s.AskQuestion(ctx, "Where is the Quantum Field discussed?")
	if r.Kind != domain.KindConceptReference {
		t.Fatalf("kind = %s, want concept_reference (%+v)", r.Kind, r)
	}
	want := domain.ConceptPages{"Quantum Field": {1}}
	if !reflect.DeepEqual(r.Concepts, want) {
		t.Errorf("concepts = %v, want %v", r.Concepts, want)
	}
	if !strings.Contains(r.Message, "'Quantum Field'") {
		t.Errorf("message = %q", r.Message)
	}
	if r.Reason != "" {
		t.Errorf("unexpected reason %q", r.Reason)
	}
}

func TestLowConfidenceWithoutConcepts(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{span: qa.Span{Answer: "x", Score: 0.1}})
	if _, err := s.ProcessPages(ctx, []string{"lowercase text only here"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	r := s.AskQuestion(ctx, "what is here?")
	if r.Kind != domain.KindNotFound || r.Message != MsgNotFound {
		t.Fatalf("unexpected response %+v", r)
	}
}

func TestDistanceAboveThresholdIsNotFound(t *testing.T) {
	ctx := context.Background()
	far := func() *fixedEmbedder {
		// squared distance between the two vectors is 1.5
		return &fixedEmbedder{chunkVec: []float64{0, 0}, queryVec: []float64{1, 0.7071067811865476}}
	}
	s := newSession(DefaultConfig(), far, stubQA{span: qa.Span{Answer: "x", Score: 0.99}})
	if _, err := s.ProcessPages(ctx, []string{"Routing Tables hold next hops"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	r := s.AskQuestion(ctx, "Routing Tables?")
	if r.Kind != domain.KindNotFound {
		t.Fatalf("kind = %s, want not_found", r.Kind)
	}
}

func TestAnswerTruncatesContext(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("word ", 100)
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{span: qa.Span{Answer: "word", Score: 0.9}})
	if _, err := s.ProcessPages(ctx, []string{"intro", long}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	r := s.AskQuestion(ctx, "which word?")
	if r.Kind != domain.KindAnswer {
		t.Fatalf("kind = %s, want answer", r.Kind)
	}
	if r.Answer != "word" || r.Confidence != 0.9 || r.Page != 1 {
		t.Errorf("unexpected answer %+v", r)
	}
	s.cfg.ContextChars = 3
	r = s.AskQuestion(ctx, "which word?")
	if r.Context != "int..." {
		t.Errorf("context = %q", r.Context)
	}
}

func TestQAFailureIsMarked(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{err: errors.New("model offline")})
	if _, err := s.ProcessPages(ctx, []string{"Packet Switching splits messages"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	r := s.AskQuestion(ctx, "explain packet switching")
	if r.Kind != domain.KindConceptReference || r.Reason != domain.ReasonQAUnavailable {
		t.Fatalf("unexpected response %+v", r)
	}
	r = s.AskQuestion(ctx, "something else")
	if r.Kind != domain.KindNotFound || r.Reason != domain.ReasonQAUnavailable {
		t.Fatalf("unexpected response %+v", r)
	}
}

func TestConceptReferences(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{})
	pages := []string{"Network Layer forwards packets", "nothing", "the Network Layer again"}
	if _, err := s.ProcessPages(ctx, pages); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	first := s.ConceptReferences("Network Layer")
	second := s.ConceptReferences("Network Layer")
	if first.Kind != domain.KindConceptReference || !reflect.DeepEqual(first.Pages, []int{1, 3}) {
		t.Fatalf("unexpected response %+v", first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("lookup not idempotent: %+v vs %+v", first, second)
	}
	miss := s.ConceptReferences("network layer")
	if miss.Kind != domain.KindNotFound || miss.Message != "The concept 'network layer' was not found in the lecture notes." {
		t.Errorf("unexpected miss %+v", miss)
	}
}

func TestReingestion(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{})
	for i := 0; i < 2; i++ {
		if _, err := s.ProcessPages(ctx, []string{"Transport Layer"}); err != nil {
			t.Fatalf("ProcessPages: %v", err)
		}
	}
	if got := s.ConceptReferences("Transport Layer").Pages; !reflect.DeepEqual(got, []int{1, 1}) {
		t.Errorf("accumulated pages = %v", got)
	}
	if n := len(s.Chunks()); n != 1 {
		t.Errorf("chunks replaced on ingestion, got %d", n)
	}

	cfg := DefaultConfig()
	cfg.ResetConceptsOnIngest = true
	s = newSession(cfg, nearEmbedder, stubQA{})
	for i := 0; i < 2; i++ {
		if _, err := s.ProcessPages(ctx, []string{"Transport Layer"}); err != nil {
			t.Fatalf("ProcessPages: %v", err)
		}
	}
	if got := s.ConceptReferences("Transport Layer").Pages; !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("reset pages = %v", got)
	}
}

func TestEmptyDocumentKeepsState(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{span: qa.Span{Answer: "a", Score: 0.9}})
	if _, err := s.ProcessPages(ctx, []string{"Some Content here"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	if _, err := s.ProcessPages(ctx, []string{"   ", ""}); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if r := s.AskQuestion(ctx, "content?"); r.Kind != domain.KindAnswer {
		t.Fatalf("prior state lost: %+v", r)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{})
	if _, err := s.ProcessPages(ctx, []string{"Some Content"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	s.Reset()
	if r := s.AskQuestion(ctx, "q"); r.Kind != domain.KindError {
		t.Fatalf("expected error after reset, got %+v", r)
	}
	if keys, _ := s.Concepts(); len(keys) != 0 {
		t.Errorf("concepts survived reset: %v", keys)
	}
}

func TestProcessDocumentEndToEnd(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.txt")
	text := "Congestion Control adjusts the sender window when packets are lost. Routing picks paths."
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewSession(DefaultConfig(), func() *index.Index {
		return index.New(tfidf.NewEmbedder(), memory.NewStorage())
	}, qa.NewAdapter(lexical.New(), ""))
	sum, err := s.ProcessDocument(ctx, path)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if sum.Pages != 1 || sum.Chunks != 1 || sum.Concepts == 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.Highlights) != 2 || sum.Highlights[0].Page != 1 {
		t.Errorf("unexpected highlights %+v", sum.Highlights)
	}
	r := s.AskQuestion(ctx, "congestion control sender window")
	if r.Kind != domain.KindAnswer || r.Page != 1 {
		t.Fatalf("unexpected response %+v", r)
	}
	if !strings.HasPrefix(r.Answer, "Congestion Control adjusts") {
		t.Errorf("answer = %q", r.Answer)
	}
}

func TestProcessPagesKeepsPageNumbersOfMarkerShapedText(t *testing.T) {
	ctx := context.Background()
	s := newSession(DefaultConfig(), nearEmbedder, stubQA{})
	pages := []string{"Alpha text here", "Lecture transcript\n--- Page 9 ---\nBeta text", "Gamma text"}
	if _, err := s.ProcessPages(ctx, pages); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	var got []int
	for _, ch := range s.Chunks() {
		got = append(got, ch.Page)
	}
	if want := []int{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("chunk pages = %v, want %v", got, want)
	}
}

func TestAnswerJSONKeepsKeysAtZeroConfidence(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinConfidence = 0
	s := newSession(cfg, nearEmbedder, stubQA{span: qa.Span{Answer: "", Score: 0}})
	if _, err := s.ProcessPages(ctx, []string{"Some content"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	data, err := json.Marshal(s.AskQuestion(ctx, "content?"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"answer","answer":"","confidence":0,"page":1,"context":"Some content"}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

// trackedStore records Clear calls and can fail Upsert.
type trackedStore struct {
	*memory.Storage
	failUpsert bool
	cleared    bool
}

func (s *trackedStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if s.failUpsert {
		return errors.New("collection unavailable")
	}
	return s.Storage.Upsert(ctx, chunks, vectors)
}

func (s *trackedStore) Clear(ctx context.Context) error {
	s.cleared = true
	return s.Storage.Clear(ctx)
}

func TestFailedBuildKeepsServingPreviousIndex(t *testing.T) {
	ctx := context.Background()
	var stores []*trackedStore
	failNext := false
	s := NewSession(DefaultConfig(), func() *index.Index {
		st := &trackedStore{Storage: memory.NewStorage(), failUpsert: failNext}
		stores = append(stores, st)
		var store vectorstore.Storage = st
		return index.New(nearEmbedder(), store)
	}, qa.NewAdapter(stubQA{span: qa.Span{Answer: "first", Score: 0.9}}, ""))

	if _, err := s.ProcessPages(ctx, []string{"first document"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	failNext = true
	if _, err := s.ProcessPages(ctx, []string{"second document"}); err == nil {
		t.Fatalf("expected build error")
	}
	if stores[0].cleared {
		t.Fatalf("live store was cleared by a failed build")
	}
	if !stores[1].cleared {
		t.Errorf("failed build left its store populated")
	}
	r := s.AskQuestion(ctx, "which?")
	if r.Kind != domain.KindAnswer || r.Context != "first document" {
		t.Fatalf("previous index not serving: %+v", r)
	}

	failNext = false
	if _, err := s.ProcessPages(ctx, []string{"third document"}); err != nil {
		t.Fatalf("ProcessPages: %v", err)
	}
	if !stores[0].cleared {
		t.Errorf("replaced store was not released")
	}
	if r := s.AskQuestion(ctx, "which?"); r.Context != "third document" {
		t.Errorf("context = %q", r.Context)
	}
}
