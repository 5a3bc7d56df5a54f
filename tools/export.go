package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/production-breakdown/internal/export"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
)

type ExportQuery struct {
	Breakdown  string `json:"breakdown" jsonschema:"breakdown markdown to export"`
	OutputPath string `json:"output_path" jsonschema:"where to write the .docx file"`
}

type ExportResponse struct {
	Path      string `json:"path"`
	SizeBytes int    `json:"size_bytes"`
}

func ExportTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExportQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "breakdown-export",
		Description: "Export a production breakdown to a Word (.docx) document",
		InputSchema: inputschema,
	}
}

func ExportToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExportQuery, exporter *export.DocxExporter, log logger.Logger) (*mcp.CallToolResult, *ExportResponse, error) {
	if strings.TrimSpace(query.Breakdown) == "" {
		return nil, nil, errors.New("breakdown is required")
	}
	if query.OutputPath == "" {
		return nil, nil, errors.New("output_path is required")
	}
	path := query.OutputPath
	if filepath.Ext(path) != ".docx" {
		path += ".docx"
	}

	data, err := exporter.ExportBytes(query.Breakdown)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Info("Exported breakdown to %s (%d bytes)", path, len(data))
	return nil, &ExportResponse{Path: path, SizeBytes: len(data)}, nil
}
