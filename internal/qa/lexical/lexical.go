package lexical

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"notesqa/internal/qa"
)

var (
	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe    = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

var errNoSentence = errors.New("context has no sentences")

// Model is an offline extractive reader: it answers with the context
// sentence that shares the most terms with the question, scored by the
// Ochiai coefficient.
type Model struct {
	stopwords map[string]struct{}
}

var _ qa.Model = (*Model)(nil)

func New() *Model {
	return &Model{stopwords: defaultStopwords()}
}

func (m *Model) Name() string { return "lexical" }

func (m *Model) Extract(_ context.Context, question, passage string) (qa.Span, error) {
	sentences := Sentences(passage)
	if len(sentences) == 0 {
		return qa.Span{}, errNoSentence
	}
	qset := m.tokenSet(question)
	best, bestScore := 0, -1.0
	for i, s := range sentences {
		score := ochiai(qset, m.tokenSet(s))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return qa.Span{Answer: sentences[best], Score: bestScore}, nil
}

// Sentences splits text into trimmed sentences. Trailing text without
// terminal punctuation counts as a sentence.
func Sentences(text string) []string {
	var out []string
	rest := text
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		rest = text[loc[1]:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

func (m *Model) tokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := m.stopwords[t]; stop {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if _, ok := a[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those", "from", "so", "such", "into", "about", "can", "will",
		"what", "which", "who", "where", "when", "why", "how", "does", "do", "did", "explain", "describe", "define",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
