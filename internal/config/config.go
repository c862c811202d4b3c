package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// OllamaEmbedderConfig configures embeddings served by an Ollama instance.
type OllamaEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Ollama *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
}

// ChunkerConfig configures how pages are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	PreviewChars int `yaml:"preview_chars"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type    string         `yaml:"type"`
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant  *QdrantConfig  `yaml:"qdrant,omitempty"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Collection string `yaml:"collection"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// HFQAConfig points at a question-answering inference endpoint.
type HFQAConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMQAConfig configures a chat model used as an extractive reader.
type LLMQAConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QAConfig selects the question-answering model.
type QAConfig struct {
	Type           string       `yaml:"type"`
	HF             *HFQAConfig  `yaml:"hf,omitempty"`
	LLM            *LLMQAConfig `yaml:"llm,omitempty"`
	FallbackAnswer string       `yaml:"fallback_answer,omitempty"`
}

// AnswerConfig holds the retrieval and confidence thresholds.
type AnswerConfig struct {
	TopK          int     `yaml:"top_k"`
	MaxDistance   float64 `yaml:"max_distance"`
	MinConfidence float64 `yaml:"min_confidence"`
	ContextChars  int     `yaml:"context_chars"`
}

// SessionConfig controls state carried across ingestions.
type SessionConfig struct {
	ResetConceptsOnIngest bool `yaml:"reset_concepts_on_ingest"`
}

// SummaryConfig controls the key sentences shown after processing.
type SummaryConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	QA          QAConfig          `yaml:"qa"`
	Answer      AnswerConfig      `yaml:"answer"`
	Session     SessionConfig     `yaml:"session"`
	Summary     SummaryConfig     `yaml:"summary"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Keys missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/notesqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/notesqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "notesqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{ChunkSize: 500, PreviewChars: 100},
		VectorStore: VectorStoreConfig{Type: "memory"},
		QA:          QAConfig{Type: "lexical"},
		Answer:      AnswerConfig{TopK: 5, MaxDistance: 1.0, MinConfidence: 0.2, ContextChars: 300},
		Summary:     SummaryConfig{MaxSentences: 3},
		Log:         LogConfig{Level: "info", Pretty: true},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.PreviewChars <= 0 {
		cfg.Chunker.PreviewChars = 100
	}
	if cfg.Answer.TopK <= 0 {
		cfg.Answer.TopK = 5
	}
	if cfg.Answer.ContextChars <= 0 {
		cfg.Answer.ContextChars = 300
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
	}
	if cfg.VectorStore.Type == "chromem" && cfg.VectorStore.Chromem == nil {
		cfg.VectorStore.Chromem = &ChromemConfig{Collection: "notes"}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "notes"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 30
		}
	}
	if cfg.QA.Type == "hf" && cfg.QA.HF != nil {
		if cfg.QA.HF.URL == "" {
			cfg.QA.HF.URL = "https://api-inference.huggingface.co/models/deepset/roberta-base-squad2"
		}
		if cfg.QA.HF.APIKeyEnv == "" {
			cfg.QA.HF.APIKeyEnv = "HF_API_TOKEN"
		}
	}
	if cfg.QA.Type == "llm" {
		if cfg.QA.LLM == nil {
			cfg.QA.LLM = &LLMQAConfig{}
		}
		if cfg.QA.LLM.Provider == "" {
			cfg.QA.LLM.Provider = "ollama"
		}
		if cfg.QA.LLM.Model == "" {
			cfg.QA.LLM.Model = "llama3.2"
		}
		if cfg.QA.LLM.TimeoutSecs == 0 {
			cfg.QA.LLM.TimeoutSecs = 60
		}
	}
}
