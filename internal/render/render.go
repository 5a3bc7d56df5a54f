// Package render rasterizes single PDF pages to JPEG with an external
// rasterizer binary (poppler's pdftoppm by default).
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Renderer turns one PDF page into an image file. The caller owns the
// returned file and must remove it.
type Renderer interface {
	RenderPage(ctx context.Context, pdfPath string, pageNumber, dpi, jpegQuality int) (string, error)
	IsAvailable() bool
}

// RenderError reports a failed page rasterization
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PopplerRenderer shells out to pdftoppm
type PopplerRenderer struct {
	binary    string
	path      string
	outputDir string
}

// NewPopplerRenderer looks the binary up on PATH once. outputDir defaults to
// the system temp directory.
func NewPopplerRenderer(binary, outputDir string) *PopplerRenderer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		resolved = ""
	}
	return &PopplerRenderer{binary: binary, path: resolved, outputDir: outputDir}
}

func (r *PopplerRenderer) IsAvailable() bool {
	return r.path != ""
}

// RenderPage writes <outputDir>/page-<uuid>.jpg. The token keeps concurrent
// renders of the same page from colliding.
func (r *PopplerRenderer) RenderPage(ctx context.Context, pdfPath string, pageNumber, dpi, jpegQuality int) (string, error) {
	if !r.IsAvailable() {
		return "", &RenderError{Page: pageNumber, Err: fmt.Errorf("%s not found on PATH", r.binary)}
	}
	if pageNumber < 1 {
		return "", &RenderError{Page: pageNumber, Err: fmt.Errorf("invalid page number")}
	}

	prefix := filepath.Join(r.outputDir, "page-"+uuid.NewString())
	page := strconv.Itoa(pageNumber)
	args := []string{
		"-f", page,
		"-l", page,
		"-r", strconv.Itoa(dpi),
		"-jpeg",
		"-jpegopt", "quality=" + strconv.Itoa(jpegQuality),
		"-singlefile",
		pdfPath,
		prefix,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &RenderError{Page: pageNumber, Err: fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))}
	}

	output := prefix + ".jpg"
	if _, err := os.Stat(output); err != nil {
		return "", &RenderError{Page: pageNumber, Err: fmt.Errorf("rasterizer produced no output: %w", err)}
	}
	return output, nil
}
