package resources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/production-breakdown/models"
)

type mapLoader map[string]models.ConversationHistory

func (m mapLoader) LoadSession(ctx context.Context, id string) (models.ConversationHistory, error) {
	h, ok := m[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return h, nil
}

func TestReadResource(t *testing.T) {
	loader := mapLoader{
		"abc": {
			{Role: models.RoleUser, Content: []models.ContentBlock{models.TextBlock("brief")}},
			{Role: models.RoleAssistant, Content: []models.ContentBlock{models.TextBlock("# v1")}},
			{Role: models.RoleUser, Content: []models.ContentBlock{models.TextBlock("feedback")}},
			{Role: models.RoleAssistant, Content: []models.ContentBlock{models.TextBlock("# v2")}},
		},
	}
	h := NewSessionResourceHandler(loader)
	ctx := context.Background()

	tests := []struct {
		name     string
		uri      string
		wantErr  bool
		mimeType string
		contains string
	}{
		{"history", "breakdown-session://abc", false, "application/json", `"role": "assistant"`},
		{"latest breakdown", "breakdown-session://abc/breakdown", false, "text/markdown", "# v2"},
		{"wrong scheme", "pdf://abc", true, "", ""},
		{"missing id", "breakdown-session://", true, "", ""},
		{"unknown session", "breakdown-session://nope", true, "", ""},
		{"unknown type", "breakdown-session://abc/pages", true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.ReadResource(ctx, tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadResource: %v", err)
			}
			c := res.Contents[0]
			if c.MIMEType != tt.mimeType || !strings.Contains(c.Text, tt.contains) {
				t.Errorf("Unexpected content %s: %q", c.MIMEType, c.Text)
			}
		})
	}
}
