package concepts

import (
	"regexp"
	"strings"
	"sync"

	"notesqa/internal/domain"
)

// pattern matches proper-noun-like phrases: a capitalised word of at least
// four letters, optionally followed by more such words.
var pattern = regexp.MustCompile(`[A-Z][a-zA-Z]{3,}(?:\s+[A-Z][a-zA-Z]{3,})*`)

// Table records every page a concept was seen on. Keys are case-sensitive
// and page lists are append-only, duplicates included.
type Table struct {
	mu    sync.RWMutex
	pages map[string][]int
	order []string
}

// NewTable creates an empty concept table.
func NewTable() *Table {
	return &Table{pages: make(map[string][]int)}
}

// Find returns the concept matches in text, in order of appearance.
func Find(text string) []string {
	return pattern.FindAllString(text, -1)
}

// Extract appends page to the entry of every concept found in text.
func (t *Table) Extract(text string, page int) {
	matches := Find(text)
	if len(matches) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range matches {
		if _, ok := t.pages[m]; !ok {
			t.order = append(t.order, m)
		}
		t.pages[m] = append(t.pages[m], page)
	}
}

// Pages returns a copy of the pages recorded for concept. The lookup is an
// exact, case-sensitive match.
func (t *Table) Pages(concept string) ([]int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.pages[concept]
	if !ok {
		return nil, false
	}
	return append([]int(nil), p...), true
}

// MatchQuestion returns every known concept that occurs in question,
// compared case-insensitively, with its pages. Unlike Pages this is a
// substring scan, so "network layer" in a question matches "Network Layer".
func (t *Table) MatchQuestion(question string) domain.ConceptPages {
	q := strings.ToLower(question)
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out domain.ConceptPages
	for _, c := range t.order {
		if !strings.Contains(q, strings.ToLower(c)) {
			continue
		}
		if out == nil {
			out = make(domain.ConceptPages)
		}
		out[c] = append([]int(nil), t.pages[c]...)
	}
	return out
}

// Keys returns the concepts in first-seen order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

// Snapshot copies the whole table.
func (t *Table) Snapshot() domain.ConceptPages {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(domain.ConceptPages, len(t.pages))
	for k, v := range t.pages {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// Len returns the number of distinct concepts.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Merge appends every entry of other onto t, keeping other's key order for
// keys t has not seen yet.
func (t *Table) Merge(other *Table) {
	if other == nil || other == t {
		return
	}
	keys := other.Keys()
	snap := other.Snapshot()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		if _, ok := t.pages[k]; !ok {
			t.order = append(t.order, k)
		}
		t.pages[k] = append(t.pages[k], snap[k]...)
	}
}

// Reset drops every entry.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages = make(map[string][]int)
	t.order = nil
}
