package tools

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Epistemic-Technology/production-breakdown/internal/breakdown"
	"github.com/Epistemic-Technology/production-breakdown/internal/documents"
	"github.com/Epistemic-Technology/production-breakdown/internal/export"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/uploads"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

type fakeService struct {
	store    *uploads.Store
	received []models.UploadedFile
	err      error
}

func (f *fakeService) Generate(ctx context.Context, files []models.UploadedFile) (*models.BreakdownResult, error) {
	f.received = files
	defer f.store.Cleanup(files)
	if f.err != nil {
		return nil, f.err
	}
	return &models.BreakdownResult{Text: "# Production Breakdown", SessionID: "s1"}, nil
}

func (f *fakeService) Revise(ctx context.Context, req breakdown.ReviseRequest) (*models.BreakdownResult, error) {
	if req.RevisionRequest == "" {
		return nil, &breakdown.Error{Kind: breakdown.KindInput, Message: "revisionRequest is required", Err: errors.New("detail")}
	}
	return &models.BreakdownResult{Text: "revised"}, nil
}

func TestGenerateToolHandler_CopiesSources(t *testing.T) {
	log := logger.NewNoOpLogger()
	store, err := uploads.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	original := filepath.Join(t.TempDir(), "brief.png")
	if err := os.WriteFile(original, []byte("\x89PNG\r\n\x1a\nimage"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{store: store}
	_, resp, err := GenerateToolHandler(context.Background(), nil, GenerateQuery{
		Sources: []models.SourceInfo{{Path: original}},
	}, svc, store, documents.ZoteroCredentials{}, log)
	if err != nil {
		t.Fatalf("GenerateToolHandler: %v", err)
	}
	if resp.Breakdown != "# Production Breakdown" || resp.SessionID != "s1" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(svc.received) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(svc.received))
	}
	got := svc.received[0]
	if got.StoragePath == original || filepath.Dir(got.StoragePath) != store.Dir() {
		t.Errorf("Source should be copied into upload storage, got %s", got.StoragePath)
	}
	if got.MimeHint != documents.MediaTypePNG || got.OriginalName != "brief.png" {
		t.Errorf("Unexpected upload record: %+v", got)
	}
	if _, err := os.Stat(original); err != nil {
		t.Errorf("Original file must survive cleanup: %v", err)
	}
}

func TestGenerateToolHandler_BadSourceCleansUp(t *testing.T) {
	log := logger.NewNoOpLogger()
	store, _ := uploads.NewStore(t.TempDir(), log)
	good := filepath.Join(t.TempDir(), "a.pdf")
	os.WriteFile(good, []byte("%PDF-1.4"), 0o644)

	svc := &fakeService{store: store}
	_, _, err := GenerateToolHandler(context.Background(), nil, GenerateQuery{
		Sources: []models.SourceInfo{{Path: good}, {Path: filepath.Join(t.TempDir(), "missing.pdf")}},
	}, svc, store, documents.ZoteroCredentials{}, log)
	if err == nil {
		t.Fatal("Expected error for missing source")
	}
	if svc.received != nil {
		t.Error("Service should not be called when a source fails")
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("Expected no leftover uploads, found %d", len(entries))
	}
}

func TestReviseToolHandler_PublicMessage(t *testing.T) {
	_, _, err := ReviseToolHandler(context.Background(), nil, ReviseQuery{CurrentBreakdown: "b"}, &fakeService{}, logger.NewNoOpLogger())
	if err == nil || err.Error() != "revisionRequest is required" {
		t.Errorf("Expected the short public message, got %v", err)
	}
}

func TestExportToolHandler(t *testing.T) {
	out := filepath.Join(t.TempDir(), "breakdown")
	_, resp, err := ExportToolHandler(context.Background(), nil, ExportQuery{
		Breakdown:  "# Production Breakdown\n\n- item",
		OutputPath: out,
	}, export.NewDocxExporter(), logger.NewNoOpLogger())
	if err != nil {
		t.Fatalf("ExportToolHandler: %v", err)
	}
	if resp.Path != out+".docx" {
		t.Errorf("Path = %s", resp.Path)
	}
	zr, err := zip.OpenReader(resp.Path)
	if err != nil {
		t.Fatalf("Exported file is not a docx archive: %v", err)
	}
	zr.Close()
}

func TestToolSchemas(t *testing.T) {
	for _, tool := range []struct {
		name string
		got  string
	}{
		{"breakdown-generate", GenerateTool().Name},
		{"breakdown-revise", ReviseTool().Name},
		{"breakdown-export", ExportTool().Name},
	} {
		if tool.got != tool.name {
			t.Errorf("tool name = %s, want %s", tool.got, tool.name)
		}
	}
}
