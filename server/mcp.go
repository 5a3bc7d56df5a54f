package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/production-breakdown/internal/documents"
	"github.com/Epistemic-Technology/production-breakdown/internal/export"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/uploads"
	"github.com/Epistemic-Technology/production-breakdown/resources"
	"github.com/Epistemic-Technology/production-breakdown/tools"
)

// MCPDeps are the collaborators of the MCP tool handlers
type MCPDeps struct {
	Service  BreakdownService
	Uploads  *uploads.Store
	Exporter *export.DocxExporter
	Zotero   documents.ZoteroCredentials
	// Sessions enables the session resources when set
	Sessions resources.SessionLoader
	Version  string
}

func CreateMCPServer(deps MCPDeps, log logger.Logger) *mcp.Server {
	version := deps.Version
	if version == "" {
		version = "v0.0.1"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "production-breakdown", Version: version}, nil)
	log = log.With("mcp")

	mcp.AddTool(server, tools.GenerateTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.GenerateQuery) (*mcp.CallToolResult, *tools.BreakdownResponse, error) {
		return tools.GenerateToolHandler(ctx, req, query, deps.Service, deps.Uploads, deps.Zotero, log)
	})

	mcp.AddTool(server, tools.ReviseTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ReviseQuery) (*mcp.CallToolResult, *tools.BreakdownResponse, error) {
		return tools.ReviseToolHandler(ctx, req, query, deps.Service, log)
	})

	mcp.AddTool(server, tools.ExportTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExportQuery) (*mcp.CallToolResult, *tools.ExportResponse, error) {
		return tools.ExportToolHandler(ctx, req, query, deps.Exporter, log)
	})

	if deps.Sessions != nil {
		sessionHandler := resources.NewSessionResourceHandler(deps.Sessions)

		server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: "breakdown-session://{sessionId}",
			Name:        "breakdown-session",
			Description: "Conversation history of a breakdown session",
			MIMEType:    "application/json",
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return sessionHandler.ReadResource(ctx, req.Params.URI)
		})

		server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: "breakdown-session://{sessionId}/breakdown",
			Name:        "breakdown-session-latest",
			Description: "Latest breakdown markdown of a session",
			MIMEType:    "text/markdown",
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return sessionHandler.ReadResource(ctx, req.Params.URI)
		})
	}

	return server
}
