package llmqa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"notesqa/internal/qa"
)

// Generator is the part of llms.Model the extractor needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config selects and configures a chat model.
type Config struct {
	Provider  string // "ollama" or "openai"
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

var (
	ErrNoChoices    = errors.New("model returned no choices")
	ErrNotInPassage = errors.New("answer does not occur in the passage")
)

const promptTemplate = `Answer the question using only an exact span copied from the context.
Reply with JSON only, in the form {"answer": "<span>", "score": <confidence between 0 and 1>}.
If the context does not contain the answer, reply {"answer": "", "score": 0}.

Context:
%s

Question: %s`

var (
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	jsonRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// Extractor asks a chat model for an extractive answer.
type Extractor struct {
	llm     Generator
	model   string
	timeout time.Duration
}

var _ qa.Model = (*Extractor)(nil)

// New builds the langchaingo client for cfg.Provider.
func New(cfg Config) (*Extractor, error) {
	var (
		llm Generator
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKeyEnv != "" {
			opts = append(opts, openai.WithToken(strings.TrimPrefix(os.Getenv(cfg.APIKeyEnv), "Bearer ")))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s llm: %w", cfg.Provider, err)
	}
	e := NewFromGenerator(llm, cfg.Model)
	e.timeout = cfg.Timeout
	return e, nil
}

// NewFromGenerator wraps an existing model client.
func NewFromGenerator(llm Generator, model string) *Extractor {
	return &Extractor{llm: llm, model: model}
}

func (e *Extractor) Name() string { return "llm:" + e.model }

func (e *Extractor) Extract(ctx context.Context, question, passage string) (qa.Span, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	prompt := fmt.Sprintf(promptTemplate, passage, question)
	msgs := []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}
	res, err := e.llm.GenerateContent(ctx, msgs, llms.WithTemperature(0))
	if err != nil {
		return qa.Span{}, err
	}
	if res == nil || len(res.Choices) == 0 {
		return qa.Span{}, ErrNoChoices
	}
	log.Debug().Str("model", e.model).Str("reply", res.Choices[0].Content).Msg("LLM reply")
	return parseReply(res.Choices[0].Content, passage)
}

func parseReply(reply, passage string) (qa.Span, error) {
	reply = thinkRe.ReplaceAllString(reply, "")
	raw := jsonRe.FindString(reply)
	if raw == "" {
		return qa.Span{}, fmt.Errorf("no json object in reply %q", strings.TrimSpace(reply))
	}
	var out struct {
		Answer string  `json:"answer"`
		Score  float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return qa.Span{}, fmt.Errorf("parse reply: %w", err)
	}
	out.Answer = strings.TrimSpace(out.Answer)
	if out.Answer == "" {
		return qa.Span{Score: 0}, nil
	}
	// keep the answer extractive
	if !strings.Contains(strings.ToLower(passage), strings.ToLower(out.Answer)) {
		return qa.Span{}, fmt.Errorf("%w: %q", ErrNotInPassage, out.Answer)
	}
	return qa.Span{Answer: out.Answer, Score: out.Score}, nil
}
