package tools

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/production-breakdown/internal/breakdown"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// Reviser applies revision feedback to a breakdown
type Reviser interface {
	Revise(ctx context.Context, req breakdown.ReviseRequest) (*models.BreakdownResult, error)
}

type ReviseQuery struct {
	RevisionRequest     string                     `json:"revisionRequest" jsonschema:"the requested changes"`
	CurrentBreakdown    string                     `json:"currentBreakdown" jsonschema:"the breakdown to revise"`
	ConversationHistory models.ConversationHistory `json:"conversationHistory,omitempty" jsonschema:"history returned by the previous call"`
	SessionID           string                     `json:"sessionId,omitempty" jsonschema:"session returned by the previous call, used when no history is sent"`
}

func ReviseTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ReviseQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "breakdown-revise",
		Description: "Revise a production breakdown according to feedback",
		InputSchema: inputschema,
	}
}

func ReviseToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ReviseQuery, svc Reviser, log logger.Logger) (*mcp.CallToolResult, *BreakdownResponse, error) {
	result, err := svc.Revise(ctx, breakdown.ReviseRequest{
		RevisionRequest:     query.RevisionRequest,
		CurrentBreakdown:    query.CurrentBreakdown,
		ConversationHistory: query.ConversationHistory,
		SessionID:           query.SessionID,
	})
	if err != nil {
		log.Error("breakdown-revise failed: %v", err)
		return nil, nil, errors.New(breakdown.PublicMessage(err))
	}
	return nil, toResponse(result), nil
}
