package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"notesqa/internal/config"
	"notesqa/internal/embedding"
	"notesqa/internal/embedding/ollama"
	"notesqa/internal/embedding/openai"
	"notesqa/internal/embedding/tfidf"
	"notesqa/internal/index"
	"notesqa/internal/qa"
	"notesqa/internal/qa/hfqa"
	"notesqa/internal/qa/lexical"
	"notesqa/internal/qa/llmqa"
	"notesqa/internal/service"
	"notesqa/internal/tui"
	"notesqa/internal/vectorstore"
	"notesqa/internal/vectorstore/chromemdb"
	"notesqa/internal/vectorstore/memory"
	"notesqa/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath      string
		question     string
		concept      string
		listConcepts bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/notesqa/config.yaml if not provided)")
	flag.StringVar(&question, "ask", "", "Answer a single question and print the response as JSON")
	flag.StringVar(&concept, "concept", "", "Look up the pages of a concept and print the response as JSON")
	flag.BoolVar(&listConcepts, "concepts", false, "Print every extracted concept as JSON")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) != 1 {
		fmt.Println("Usage: notesqa [--config=config.yaml] [--ask=QUESTION | --concept=NAME | --concepts] notes.pdf")
		os.Exit(1)
	}
	oneShot := question != "" || concept != "" || listConcepts

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		setupLogging(config.LogConfig{Level: "info", Pretty: true}, true)
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log, oneShot)
	log.Debug().Str("path", cfgPath).Msg("Loaded config")

	newEmbedder, err := embedderFactory(cfg.Embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("embedder init failed")
	}
	newStore, err := storeFactory(cfg.VectorStore)
	if err != nil {
		log.Fatal().Err(err).Msg("vector store init failed")
	}
	model, err := qaModel(cfg.QA)
	if err != nil {
		log.Fatal().Err(err).Msg("qa model init failed")
	}

	session := service.NewSession(service.Config{
		TopK:                  cfg.Answer.TopK,
		MaxDistance:           cfg.Answer.MaxDistance,
		MinConfidence:         cfg.Answer.MinConfidence,
		ContextChars:          cfg.Answer.ContextChars,
		ChunkSize:             cfg.Chunker.ChunkSize,
		PreviewChars:          cfg.Chunker.PreviewChars,
		HighlightSentences:    cfg.Summary.MaxSentences,
		ResetConceptsOnIngest: cfg.Session.ResetConceptsOnIngest,
	}, func() *index.Index {
		emb, err := newEmbedder()
		if err != nil {
			log.Fatal().Err(err).Msg("embedder init failed")
		}
		return index.New(emb, newStore())
	}, qa.NewAdapter(model, cfg.QA.FallbackAnswer))

	ctx := context.Background()
	sum, err := session.ProcessDocument(ctx, inputs[0])
	if err != nil {
		log.Fatal().Err(err).Str("path", inputs[0]).Msg("processing failed")
	}

	if oneShot {
		var out any
		switch {
		case question != "":
			out = session.AskQuestion(ctx, question)
		case concept != "":
			out = session.ConceptReferences(concept)
		default:
			out = conceptList(session)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("encode response")
		}
		fmt.Println(string(data))
		return
	}

	summary := fmt.Sprintf("%s: processed %d chunks from %d pages, found %d potential concepts",
		filepath.Base(inputs[0]), sum.Chunks, sum.Pages, sum.Concepts)
	var overview strings.Builder
	for _, h := range sum.Highlights {
		fmt.Fprintf(&overview, "p.%d  %s\n", h.Page, h.Sentence)
	}
	m := tui.New(session, summary, strings.TrimSpace(overview.String()))
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal().Err(err).Msg("tui failed")
	}
}

// setupLogging configures the global zerolog logger. The TUI owns the
// terminal, so interactive runs log to a file instead.
func setupLogging(cfg config.LogConfig, oneShot bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := os.Stderr
	if !oneShot {
		f, err := os.OpenFile(filepath.Join(os.TempDir(), "notesqa.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = f
		}
	}
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !oneShot}).With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	}
}

// embedderFactory returns a constructor so every index gets its own
// embedder; the TF-IDF vocabulary belongs to the corpus it was fitted on.
func embedderFactory(cfg config.EmbedderConfig) (func() (embedding.Embedder, error), error) {
	var newEmbedder func() (embedding.Embedder, error)
	switch cfg.Type {
	case "tfidf", "":
		newEmbedder = func() (embedding.Embedder, error) { return tfidf.NewEmbedder(), nil }
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		c := cfg.OpenAI
		newEmbedder = func() (embedding.Embedder, error) {
			return openai.NewClient(openai.Config{
				BaseURL:   c.BaseURL,
				APIKeyEnv: c.APIKeyEnv,
				Model:     c.Model,
				Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
				BatchSize: c.BatchSize,
			})
		}
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama embedder config missing")
		}
		c := cfg.Ollama
		newEmbedder = func() (embedding.Embedder, error) {
			return ollama.New(ollama.Config{BaseURL: c.BaseURL, Model: c.Model, BatchSize: c.BatchSize})
		}
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if _, err := newEmbedder(); err != nil {
		return nil, err
	}
	return newEmbedder, nil
}

func storeFactory(cfg config.VectorStoreConfig) (func() vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return func() vectorstore.Storage { return memory.NewStorage() }, nil
	case "chromem":
		collection := ""
		if cfg.Chromem != nil {
			collection = cfg.Chromem.Collection
		}
		return func() vectorstore.Storage { return chromemdb.NewStorage(collection) }, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		qcfg := qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}
		gens := qdrant.NewGenerations(qcfg)
		return func() vectorstore.Storage { return gens.Next() }, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func qaModel(cfg config.QAConfig) (qa.Model, error) {
	switch cfg.Type {
	case "lexical", "":
		return lexical.New(), nil
	case "hf":
		if cfg.HF == nil {
			return nil, fmt.Errorf("hf qa config missing")
		}
		return hfqa.NewClient(hfqa.Config{
			URL:       cfg.HF.URL,
			APIKeyEnv: cfg.HF.APIKeyEnv,
			Timeout:   time.Duration(cfg.HF.TimeoutSecs) * time.Second,
		})
	case "llm":
		if cfg.LLM == nil {
			return nil, fmt.Errorf("llm qa config missing")
		}
		return llmqa.New(llmqa.Config{
			Provider:  cfg.LLM.Provider,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			Timeout:   time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown qa model: %s", cfg.Type)
	}
}

type conceptEntry struct {
	Concept string `json:"concept"`
	Pages   []int  `json:"pages"`
}

func conceptList(s *service.Session) []conceptEntry {
	keys, pages := s.Concepts()
	out := make([]conceptEntry, len(keys))
	for i, k := range keys {
		out[i] = conceptEntry{Concept: k, Pages: pages[k]}
	}
	return out
}
