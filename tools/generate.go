package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/production-breakdown/internal/breakdown"
	"github.com/Epistemic-Technology/production-breakdown/internal/documents"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/uploads"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// Generator produces a breakdown from stored uploads
type Generator interface {
	Generate(ctx context.Context, files []models.UploadedFile) (*models.BreakdownResult, error)
}

type GenerateQuery struct {
	Sources []models.SourceInfo `json:"sources" jsonschema:"documents to read, each given by path, url or zotero_id"`
}

// BreakdownResponse is returned by the generate and revise tools
type BreakdownResponse struct {
	Breakdown           string                     `json:"breakdown"`
	ConversationHistory models.ConversationHistory `json:"conversationHistory,omitempty"`
	SessionID           string                     `json:"sessionId,omitempty"`
}

func GenerateTool() *mcp.Tool {
	inputschema, err := jsonschema.For[GenerateQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "breakdown-generate",
		Description: "Generate a production breakdown from brief documents (PDFs or images) given as local paths, URLs or Zotero attachment IDs",
		InputSchema: inputschema,
	}
}

// GenerateToolHandler copies every source into upload storage before
// generating, so the caller's own files are never removed.
func GenerateToolHandler(ctx context.Context, req *mcp.CallToolRequest, query GenerateQuery, svc Generator, store *uploads.Store, creds documents.ZoteroCredentials, log logger.Logger) (*mcp.CallToolResult, *BreakdownResponse, error) {
	if len(query.Sources) == 0 {
		return nil, nil, errors.New("at least one source is required")
	}

	files := make([]models.UploadedFile, 0, len(query.Sources))
	for i, src := range query.Sources {
		doc, err := documents.FetchSource(ctx, src, creds)
		if err != nil {
			store.Cleanup(files)
			return nil, nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		file, err := store.SaveBytes(doc.Name, doc.MediaType, doc.Data)
		if err != nil {
			store.Cleanup(files)
			return nil, nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		log.Debug("Fetched source %d as %s (%s, %d bytes)", i+1, doc.Name, doc.MediaType, len(doc.Data))
		files = append(files, file)
	}

	result, err := svc.Generate(ctx, files)
	if err != nil {
		log.Error("breakdown-generate failed: %v", err)
		return nil, nil, errors.New(breakdown.PublicMessage(err))
	}
	return nil, toResponse(result), nil
}

func toResponse(result *models.BreakdownResult) *BreakdownResponse {
	return &BreakdownResponse{
		Breakdown:           result.Text,
		ConversationHistory: result.ConversationHistory,
		SessionID:           result.SessionID,
	}
}
