package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedFormat is returned for file extensions with no page extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// File returns the ordered page texts of the document at path. PDFs yield
// one entry per page; plain text and markdown files are a single page.
func File(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return PDF(f, stat.Size())
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []string{string(data)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Bytes extracts pages from an in-memory PDF, as received from an upload.
func Bytes(data []byte) ([]string, error) {
	return PDF(bytes.NewReader(data), int64(len(data)))
}

// PDF extracts the plain text of every page. Pages without content come
// back as empty strings so page numbers stay aligned.
func PDF(r io.ReaderAt, size int64) (pages []string, err error) {
	// the pdf package panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	numPages := reader.NumPage()
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	log.Debug().Int("pages", numPages).Msg("Extracted PDF text")
	return pages, nil
}
