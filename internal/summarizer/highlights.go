package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"notesqa/internal/domain"
	"notesqa/internal/qa/lexical"
)

// Highlight is a representative sentence of the notes and its page.
type Highlight struct {
	Page     int    `json:"page"`
	Sentence string `json:"sentence"`
}

// Summarizer ranks the sentences of a document by the normalised frequency
// of their non-stopword terms.
type Summarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a frequency-based sentence ranker.
func New() *Summarizer {
	return &Summarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Highlights returns up to maxSentences sentences from chunks, in document order.
func (s *Summarizer) Highlights(chunks []domain.Chunk, maxSentences int) []Highlight {
	if maxSentences <= 0 {
		return nil
	}
	var all []Highlight
	for _, ch := range chunks {
		for _, sent := range lexical.Sentences(ch.Text) {
			all = append(all, Highlight{Page: ch.Page, Sentence: sent})
		}
	}
	if len(all) == 0 {
		return nil
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, h := range all {
		for _, tok := range s.terms(h.Sentence) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(all))
	for i, h := range all {
		toks := s.terms(h.Sentence)
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		// long sentences should not win on length alone
		if len(toks) > 0 {
			sum /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	picked := make([]int, maxSentences)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)
	out := make([]Highlight, len(picked))
	for i, idx := range picked {
		out[i] = all[idx]
	}
	return out
}

func (s *Summarizer) terms(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, ok := s.stopwords[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
