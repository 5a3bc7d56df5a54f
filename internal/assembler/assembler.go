// Package assembler turns uploaded files into an ordered list of model
// content blocks.
package assembler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/Epistemic-Technology/production-breakdown/internal/chunker"
	"github.com/Epistemic-Technology/production-breakdown/internal/documents"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/metrics"
	"github.com/Epistemic-Technology/production-breakdown/internal/render"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// Options are the ingestion knobs.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// MinTextChars and MinCharsPerPage decide when a PDF is treated as
	// scanned and its pages are rendered as images.
	MinTextChars    int
	MinCharsPerPage int
	// MaxSampledPages caps the pages rendered per PDF
	MaxSampledPages int
	RenderDPI       int
	RenderQuality   int
}

// Result is the assembled model input for one request
type Result struct {
	Blocks              []models.ContentBlock
	Diagnostics         []models.PdfDiagnostics
	TotalExtractedChars int
}

type Assembler struct {
	extractor documents.TextExtractor
	renderer  render.Renderer
	opts      Options
	log       logger.Logger
}

func New(extractor documents.TextExtractor, renderer render.Renderer, opts Options, log logger.Logger) *Assembler {
	return &Assembler{
		extractor: extractor,
		renderer:  renderer,
		opts:      opts,
		log:       log.With("assembler"),
	}
}

// Assemble processes files in submission order. A non-empty
// leadingInstruction becomes the first text block. Uploaded files are read
// but never removed.
func (a *Assembler) Assemble(ctx context.Context, files []models.UploadedFile, leadingInstruction string) (*Result, error) {
	result := &Result{Blocks: make([]models.ContentBlock, 0, len(files)+1)}
	if leadingInstruction != "" {
		result.Blocks = append(result.Blocks, models.TextBlock(leadingInstruction))
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(file.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %s: %w", file.OriginalName, err)
		}
		mediaType := documents.ResolveMediaType(file.MimeHint, data[:min(len(data), 512)])

		switch {
		case documents.IsImage(mediaType):
			a.log.Debug("Adding image %s (%s, %d bytes)", file.OriginalName, mediaType, len(data))
			result.Blocks = append(result.Blocks, models.ImageBlock(mediaType, base64.StdEncoding.EncodeToString(data)))
		case mediaType == documents.MediaTypePDF:
			blocks, diag := a.assemblePDF(ctx, file, data)
			result.Blocks = append(result.Blocks, blocks...)
			result.Diagnostics = append(result.Diagnostics, diag)
			result.TotalExtractedChars += diag.ExtractedChars
		default:
			a.log.Info("Skipping %s: media type %s is not forwarded", file.OriginalName, mediaType)
		}
	}
	return result, nil
}

func (a *Assembler) assemblePDF(ctx context.Context, file models.UploadedFile, data []byte) ([]models.ContentBlock, models.PdfDiagnostics) {
	name := file.OriginalName
	extraction, err := a.extractor.Extract(ctx, data)
	if err != nil {
		var extractionErr *documents.ExtractionError
		if !errors.As(err, &extractionErr) {
			err = &documents.ExtractionError{Backend: a.extractor.Name(), Err: err}
		}
		a.log.Warn("Treating %s as having no text: %v", name, err)
		extraction.Text = ""
	}

	textChars := utf8.RuneCountInString(extraction.Text)
	metrics.ExtractedChars.Observe(float64(textChars))
	diag := models.PdfDiagnostics{
		Filename:       name,
		PageCount:      extraction.PageCount,
		ExtractedChars: textChars,
	}

	var blocks []models.ContentBlock
	if a.opts.NeedsVisualFallback(extraction.PageCount, textChars) {
		diag.VisualFallback = true
		if a.renderer != nil && a.renderer.IsAvailable() {
			metrics.VisualFallbacks.WithLabelValues("true").Inc()
			pageBlocks, rendered := a.renderPages(ctx, file, extraction.PageCount)
			blocks = append(blocks, pageBlocks...)
			diag.RenderedPages = rendered
		} else {
			metrics.VisualFallbacks.WithLabelValues("false").Inc()
			a.log.Warn("Visual fallback wanted for %s but no rasterizer is available", name)
			blocks = append(blocks, models.TextBlock(degradedNotice(name, textChars, extraction.PageCount)))
		}
	}

	chunks := chunker.Chunk(extraction.Text, a.opts.ChunkSize, a.opts.ChunkOverlap)
	diag.ChunkCount = len(chunks)
	if len(chunks) == 0 {
		blocks = append(blocks, models.TextBlock(noTextNotice(name)))
	}
	for i, chunk := range chunks {
		blocks = append(blocks, models.TextBlock(chunkBlock(name, i+1, len(chunks), chunk)))
	}
	return blocks, diag
}

// renderPages renders the sampled pages and returns their blocks along with
// the number of pages that rendered. A failed page is skipped.
func (a *Assembler) renderPages(ctx context.Context, file models.UploadedFile, pageCount int) ([]models.ContentBlock, int) {
	pages := SamplePages(pageCount, a.opts.MaxSampledPages)
	blocks := make([]models.ContentBlock, 0, len(pages)*3)
	rendered := 0
	for _, page := range pages {
		image, err := a.renderPage(ctx, file.StoragePath, page)
		if err != nil {
			metrics.PagesRendered.WithLabelValues("error").Inc()
			a.log.Warn("Skipping page %d of %s: %v", page, file.OriginalName, err)
			continue
		}
		metrics.PagesRendered.WithLabelValues("ok").Inc()
		rendered++
		blocks = append(blocks,
			models.TextBlock(pageStartMarker(file.OriginalName, page)),
			image,
			models.TextBlock(pageEndMarker(file.OriginalName, page)),
		)
	}
	a.log.Info("Rendered %d/%d sampled pages of %s", rendered, len(pages), file.OriginalName)
	return blocks, rendered
}

// renderPage rasterizes one page and encodes it. The rendered file is
// removed before returning, whether or not encoding succeeded.
func (a *Assembler) renderPage(ctx context.Context, pdfPath string, page int) (models.ContentBlock, error) {
	imagePath, err := a.renderer.RenderPage(ctx, pdfPath, page, a.opts.RenderDPI, a.opts.RenderQuality)
	if err != nil {
		return models.ContentBlock{}, err
	}
	defer func() {
		if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
			a.log.Warn("Failed to remove rendered page %s: %v", imagePath, err)
		}
	}()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return models.ContentBlock{}, &render.RenderError{Page: page, Err: err}
	}
	if len(data) == 0 {
		return models.ContentBlock{}, &render.RenderError{Page: page, Err: errors.New("empty image")}
	}
	return models.ImageBlock(documents.MediaTypeJPEG, base64.StdEncoding.EncodeToString(data)), nil
}

// NeedsVisualFallback reports whether a PDF looks scanned: it has pages but
// too little text overall or per page.
func (o Options) NeedsVisualFallback(pageCount, textChars int) bool {
	if pageCount <= 0 {
		return false
	}
	charsPerPage := textChars / pageCount
	return textChars < o.MinTextChars || charsPerPage < o.MinCharsPerPage
}

// SamplePages spreads up to maxPages page numbers evenly across the
// document: page 1, then every interval pages where
// interval = max(2, pageCount/5).
func SamplePages(pageCount, maxPages int) []int {
	if pageCount <= 0 || maxPages <= 0 {
		return []int{}
	}
	interval := max(2, pageCount/5)
	seen := make(map[int]bool)
	pages := make([]int, 0, maxPages)
	add := func(p int) {
		if p < 1 || p > pageCount || seen[p] || len(pages) >= maxPages {
			return
		}
		seen[p] = true
		pages = append(pages, p)
	}
	add(1)
	for p := 1 + interval; p <= pageCount && len(pages) < maxPages; p += interval {
		add(p)
	}
	return pages
}
