package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Extraction backends selectable through configuration
const (
	BackendLedongthuc = "ledongthuc"
	// BackendPdfcpu only counts pages; every PDF then goes through the
	// visual fallback path.
	BackendPdfcpu = "pdfcpu"
)

// Extraction is the result of pulling text out of a PDF
type Extraction struct {
	Text      string
	PageCount int
}

// TextExtractor extracts plain text and the page count from PDF bytes.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (Extraction, error)
	Name() string
}

// ExtractionError reports a failed text extraction. Callers treat the
// document as having no extractable text.
type ExtractionError struct {
	Backend string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("text extraction failed (%s): %v", e.Backend, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrUnknownBackend is returned by NewTextExtractor for unsupported names
var ErrUnknownBackend = errors.New("unknown text extraction backend")

// NewTextExtractor selects the extraction backend once at startup.
func NewTextExtractor(backend string) (TextExtractor, error) {
	switch strings.ToLower(backend) {
	case "", BackendLedongthuc:
		return &LedongthucExtractor{}, nil
	case BackendPdfcpu:
		return &PdfcpuExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// LedongthucExtractor reads the text layer with github.com/ledongthuc/pdf and
// falls back to pdfcpu for the page count when the text reader cannot parse
// the document structure.
type LedongthucExtractor struct{}

func (e *LedongthucExtractor) Name() string { return BackendLedongthuc }

func (e *LedongthucExtractor) Extract(ctx context.Context, data []byte) (result Extraction, err error) {
	if len(data) == 0 {
		return Extraction{}, &ExtractionError{Backend: e.Name(), Err: errors.New("empty document")}
	}
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	// the reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			result, err = e.fail(data, 0, fmt.Errorf("panic while reading pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return e.fail(data, 0, err)
	}
	pageCount := reader.NumPage()

	text, err := pageTexts(ctx, reader, pageCount)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Extraction{}, ctxErr
	}
	if err != nil {
		return e.fail(data, pageCount, err)
	}

	if pageCount <= 0 {
		if n, countErr := countPages(data); countErr == nil {
			pageCount = n
		}
	}

	return Extraction{
		Text:      normalizeText(text),
		PageCount: pageCount,
	}, nil
}

// pageTexts reads the text layer page by page and joins pages with a
// newline. Unreadable pages are skipped; an error is returned only when no
// page yields text and at least one failed.
func pageTexts(ctx context.Context, reader *pdf.Reader, pageCount int) (string, error) {
	pages := make([]string, 0, pageCount)
	var firstErr error
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", i, err)
			}
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 && firstErr != nil {
		return "", firstErr
	}
	return strings.Join(pages, "\n"), nil
}

// fail keeps whatever page count is still recoverable so a document whose
// text layer is unreadable can go through visual fallback.
func (e *LedongthucExtractor) fail(data []byte, pageCount int, err error) (Extraction, error) {
	if pageCount <= 0 {
		if n, countErr := countPages(data); countErr == nil {
			pageCount = n
		}
	}
	return Extraction{PageCount: pageCount}, &ExtractionError{Backend: e.Name(), Err: err}
}

// PdfcpuExtractor validates the document and counts pages with pdfcpu. It
// yields no text.
type PdfcpuExtractor struct{}

func (e *PdfcpuExtractor) Name() string { return BackendPdfcpu }

func (e *PdfcpuExtractor) Extract(ctx context.Context, data []byte) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	n, err := countPages(data)
	if err != nil {
		return Extraction{}, &ExtractionError{Backend: e.Name(), Err: err}
	}
	return Extraction{PageCount: n}, nil
}

func countPages(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("empty document")
	}
	conf := model.NewDefaultConfiguration()
	return api.PageCount(bytes.NewReader(data), conf)
}

// normalizeText trims the extracted text; whitespace-only output becomes "".
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.TrimSpace(s)
}
