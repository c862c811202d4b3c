package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"notesqa/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultPreviewChars = 100

	ellipsis = "..."
)

// ErrInvalidChunkSize is returned when the word window is not positive.
var ErrInvalidChunkSize = errors.New("chunk size must be > 0")

var markerRe = regexp.MustCompile(`(?m)^--- Page (\d+) ---[ \t]*\r?$`)

// PageMarker returns the delimiter that precedes page n (1-based).
func PageMarker(n int) string {
	return fmt.Sprintf("--- Page %d ---", n)
}

// JoinPages concatenates page texts, prefixing each with its page marker.
func JoinPages(pages []string) string {
	var sb strings.Builder
	for i, p := range pages {
		sb.WriteString(PageMarker(i + 1))
		sb.WriteString("\n")
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// ConceptSink receives every chunk together with its page.
type ConceptSink interface {
	Extract(text string, page int)
}

// PageChunker splits marked document text into fixed-size word windows
// that never cross a page boundary.
type PageChunker struct {
	chunkSize    int
	previewChars int
	concepts     ConceptSink
}

// NewPageChunker creates a chunker. Zero values fall back to the defaults;
// a nil sink disables concept extraction.
func NewPageChunker(chunkSize, previewChars int, concepts ConceptSink) *PageChunker {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	return &PageChunker{chunkSize: chunkSize, previewChars: previewChars, concepts: concepts}
}

// ChunkText splits fullText, as produced by JoinPages, into chunks in page
// order then window order. Text before the first marker is ignored.
func (c *PageChunker) ChunkText(fullText string) ([]domain.Chunk, error) {
	if c.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	locs := markerRe.FindAllStringSubmatchIndex(fullText, -1)
	var chunks []domain.Chunk
	for i, loc := range locs {
		page, err := strconv.Atoi(fullText[loc[2]:loc[3]])
		if err != nil {
			return nil, fmt.Errorf("parse page marker %q: %w", fullText[loc[0]:loc[1]], err)
		}
		end := len(fullText)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunks = c.appendPage(chunks, page, fullText[loc[1]:end])
	}
	return chunks, nil
}

// ChunkPages splits already separated pages; page numbers come from the
// slice position, so page text is never scanned for markers.
func (c *PageChunker) ChunkPages(pages []string) ([]domain.Chunk, error) {
	if c.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	var chunks []domain.Chunk
	for i, text := range pages {
		chunks = c.appendPage(chunks, i+1, text)
	}
	return chunks, nil
}

func (c *PageChunker) appendPage(chunks []domain.Chunk, page int, text string) []domain.Chunk {
	words := strings.Fields(text)
	for start := 0; start < len(words); start += c.chunkSize {
		stop := min(start+c.chunkSize, len(words))
		window := strings.Join(words[start:stop], " ")
		chunks = append(chunks, domain.Chunk{
			Index:    len(chunks),
			Page:     page,
			ChunkNum: len(chunks) + 1,
			Text:     window,
			Preview:  Truncate(window, c.previewChars),
		})
		if c.concepts != nil {
			c.concepts.Extract(window, page)
		}
	}
	return chunks
}

// Truncate keeps the first n characters of s and appends "..." if anything
// was cut.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + ellipsis
		}
		count++
	}
	return s
}
