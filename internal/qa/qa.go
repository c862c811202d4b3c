package qa

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultFallbackAnswer is returned in place of an answer when the model fails.
const DefaultFallbackAnswer = "I cannot find a specific answer to this question in the provided context."

var (
	ErrEmptyInput   = errors.New("question and context must be non-empty")
	ErrInvalidScore = errors.New("model score outside [0,1]")
)

// Span is an extractive answer: a piece of the context plus a confidence.
type Span struct {
	Answer string
	Score  float64
}

// Model extracts an answer span for question from context.
type Model interface {
	Name() string
	Extract(ctx context.Context, question, passage string) (Span, error)
}

// Result is what the adapter hands back. Err is set when the model failed
// and Answer/Score hold the fallback, so callers can tell "model
// unavailable" apart from a genuine low-confidence answer.
type Result struct {
	Answer string
	Score  float64
	Err    error
}

// Failed reports whether the result is a fallback.
func (r Result) Failed() bool { return r.Err != nil }

// Adapter wraps a Model and never returns an error: failures are logged and
// replaced by a zero-confidence fallback.
type Adapter struct {
	model    Model
	fallback string
}

// NewAdapter creates an adapter. An empty fallback uses DefaultFallbackAnswer.
func NewAdapter(model Model, fallback string) *Adapter {
	if fallback == "" {
		fallback = DefaultFallbackAnswer
	}
	return &Adapter{model: model, fallback: fallback}
}

// Answer runs the model on question against passage.
func (a *Adapter) Answer(ctx context.Context, question, passage string) Result {
	span, err := a.extract(ctx, question, passage)
	if err != nil {
		log.Warn().Err(err).Str("model", a.model.Name()).Msg("QA model failed, using fallback answer")
		return Result{Answer: a.fallback, Score: 0, Err: err}
	}
	log.Debug().Str("model", a.model.Name()).Float64("score", span.Score).Msg("QA answer")
	return Result{Answer: span.Answer, Score: span.Score}
}

func (a *Adapter) extract(ctx context.Context, question, passage string) (span Span, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("qa model panic: %v", rec)
		}
	}()
	if strings.TrimSpace(question) == "" || strings.TrimSpace(passage) == "" {
		return Span{}, ErrEmptyInput
	}
	span, err = a.model.Extract(ctx, question, passage)
	if err != nil {
		return Span{}, err
	}
	if math.IsNaN(span.Score) || span.Score < 0 || span.Score > 1 {
		return Span{}, fmt.Errorf("%w: %v", ErrInvalidScore, span.Score)
	}
	return span, nil
}
