package documents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Epistemic-Technology/production-breakdown/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"PDF document", []byte("%PDF-1.4\nsome pdf content"), MediaTypePDF},
		{"PNG image", pngHeader, MediaTypePNG},
		{"JPEG image", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, MediaTypeJPEG},
		{"GIF image", []byte("GIF89a\x01\x00\x01\x00"), MediaTypeGIF},
		{"WebP image", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), MediaTypeWebP},
		{"Plain text", []byte("Call sheet: day 3, unit base at the harbour"), MediaTypeText},
		{"Binary data", []byte{0x00, 0x01, 0x02, 0xFF, 0xFE}, MediaTypeUnknown},
		{"Empty data", []byte{}, MediaTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectMediaType(tt.data)
			if result != tt.expected {
				t.Errorf("DetectMediaType() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		name string
		hint string
		head []byte
		want string
	}{
		{"supported hint wins", "image/png", []byte("%PDF-1.7"), MediaTypePNG},
		{"hint with params", "application/pdf; charset=binary", nil, MediaTypePDF},
		{"jpg alias", "image/jpg", nil, MediaTypeJPEG},
		{"octet-stream falls back to sniffing", "application/octet-stream", pngHeader, MediaTypePNG},
		{"no hint sniffs", "", []byte("%PDF-1.3"), MediaTypePDF},
		{"unsupported hint sniffs", "application/msword", []byte{0xD0, 0xCF, 0x11, 0xE0, 0x00}, MediaTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveMediaType(tt.hint, tt.head); got != tt.want {
				t.Errorf("ResolveMediaType(%q) = %v, want %v", tt.hint, got, tt.want)
			}
		})
	}
}

func TestNewTextExtractor(t *testing.T) {
	for _, name := range []string{"", BackendLedongthuc, BackendPdfcpu} {
		if _, err := NewTextExtractor(name); err != nil {
			t.Errorf("NewTextExtractor(%q) failed: %v", name, err)
		}
	}
	_, err := NewTextExtractor("tika")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestExtractorsRejectInvalidInput(t *testing.T) {
	ctx := context.Background()
	for _, extractor := range []TextExtractor{&LedongthucExtractor{}, &PdfcpuExtractor{}} {
		t.Run(extractor.Name(), func(t *testing.T) {
			for _, data := range [][]byte{{}, []byte("This is not a PDF")} {
				_, err := extractor.Extract(ctx, data)
				var extractionErr *ExtractionError
				if !errors.As(err, &extractionErr) {
					t.Errorf("expected ExtractionError for %q, got %v", data, err)
				}
			}
		})
	}
}

func TestLedongthucExtractPagesSeparately(t *testing.T) {
	data := buildPDF("Shoot day one at Studio A", "Second page call sheet", "Third page budget")
	result, err := (&LedongthucExtractor{}).Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", result.PageCount)
	}
	want := "Shoot day one at Studio A\nSecond page call sheet\nThird page budget"
	if result.Text != want {
		t.Errorf("Text = %q, want %q", result.Text, want)
	}
}

func TestPdfcpuExtractCountsPages(t *testing.T) {
	result, err := (&PdfcpuExtractor{}).Extract(context.Background(), buildPDF("one", "two"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.PageCount != 2 || result.Text != "" {
		t.Errorf("unexpected extraction: %+v", result)
	}
}

func TestExtractHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&LedongthucExtractor{}).Extract(ctx, buildPDF("page"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := normalizeText(" \n\t\x00 "); got != "" {
		t.Errorf("whitespace-only text should normalize to empty, got %q", got)
	}
	if got := normalizeText("  Scene 12\n"); got != "Scene 12" {
		t.Errorf("normalizeText() = %q", got)
	}
}

func TestFetchSourceFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storyboard.png")
	if err := os.WriteFile(path, pngHeader, 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := FetchSource(context.Background(), models.SourceInfo{Path: path}, ZoteroCredentials{})
	if err != nil {
		t.Fatalf("FetchSource failed: %v", err)
	}
	if doc.Name != "storyboard.png" || doc.MediaType != MediaTypePNG {
		t.Errorf("unexpected document: name=%s type=%s", doc.Name, doc.MediaType)
	}
}

func TestFetchSourceFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 brief"))
	}))
	defer srv.Close()

	doc, err := FetchSource(context.Background(), models.SourceInfo{URL: srv.URL + "/briefs/treatment.pdf"}, ZoteroCredentials{})
	if err != nil {
		t.Fatalf("FetchSource failed: %v", err)
	}
	if doc.Name != "treatment.pdf" || doc.MediaType != MediaTypePDF {
		t.Errorf("unexpected document: name=%s type=%s", doc.Name, doc.MediaType)
	}

	if _, err := FetchSource(context.Background(), models.SourceInfo{URL: srv.URL + "/missing.pdf"}, ZoteroCredentials{}); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestGetFromURLRejectsOversizedBody(t *testing.T) {
	orig := maxRemoteSize
	maxRemoteSize = 16
	defer func() { maxRemoteSize = orig }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Query().Get("body")))
	}))
	defer srv.Close()

	if _, _, err := GetFromURL(context.Background(), srv.URL+"?body=0123456789abcdef"); err != nil {
		t.Errorf("body at the limit should be accepted: %v", err)
	}
	_, _, err := GetFromURL(context.Background(), srv.URL+"?body=0123456789abcdefX")
	if !errors.Is(err, ErrRemoteTooLarge) {
		t.Errorf("expected ErrRemoteTooLarge, got %v", err)
	}
}

func TestFetchSourceRequiresSomething(t *testing.T) {
	if _, err := FetchSource(context.Background(), models.SourceInfo{}, ZoteroCredentials{}); err == nil {
		t.Error("expected error for empty source")
	}
	if _, err := FetchSource(context.Background(), models.SourceInfo{ZoteroID: "ABCD1234"}, ZoteroCredentials{}); err == nil {
		t.Error("expected error when Zotero credentials are missing")
	}
}
