package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/production-breakdown/models"
)

const sessionScheme = "breakdown-session://"

// SessionLoader reads stored conversation histories
type SessionLoader interface {
	LoadSession(ctx context.Context, id string) (models.ConversationHistory, error)
}

// SessionResourceHandler serves stored sessions as MCP resources
type SessionResourceHandler struct {
	store SessionLoader
}

func NewSessionResourceHandler(store SessionLoader) *SessionResourceHandler {
	return &SessionResourceHandler{store: store}
}

// ReadResource resolves breakdown-session://{id} to the session history and
// breakdown-session://{id}/breakdown to the latest breakdown markdown.
func (h *SessionResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if !strings.HasPrefix(uri, sessionScheme) {
		return nil, fmt.Errorf("invalid URI scheme, expected %s", sessionScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, sessionScheme), "/")
	sessionID := parts[0]
	if sessionID == "" {
		return nil, fmt.Errorf("invalid URI, missing session ID")
	}
	resourceType := ""
	if len(parts) > 1 {
		resourceType = parts[1]
	}

	history, err := h.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var content, mimeType string
	switch resourceType {
	case "":
		data, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}
		content, mimeType = string(data), "application/json"
	case "breakdown":
		content, mimeType = LatestBreakdown(history), "text/markdown"
		if content == "" {
			return nil, fmt.Errorf("session %s has no breakdown", sessionID)
		}
	default:
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: mimeType,
				Text:     content,
			},
		},
	}, nil
}

// LatestBreakdown returns the text of the last assistant turn
func LatestBreakdown(history models.ConversationHistory) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleAssistant {
			continue
		}
		var parts []string
		for _, block := range history[i].Content {
			if block.IsText() {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}
