package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Epistemic-Technology/production-breakdown/models"
)

// AnthropicSynthesizer calls the Anthropic Messages API
type AnthropicSynthesizer struct {
	client anthropic.Client
	model  string
}

func NewAnthropicSynthesizer(apiKey, model, baseURL string) *AnthropicSynthesizer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicSynthesizer{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (s *AnthropicSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, turn := range req.Messages {
		blocks := toAnthropicBlocks(turn.Content)
		if len(blocks) == 0 {
			continue
		}
		if turn.Role == models.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	if len(messages) == 0 {
		return "", errors.New("synthesis request has no content")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(req.MaxOutputTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text content in Anthropic response")
	}
	return b.String(), nil
}

func toAnthropicBlocks(content []models.ContentBlock) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, block := range content {
		switch {
		case block.IsImage() && block.Source != nil:
			blocks = append(blocks, anthropic.NewImageBlockBase64(block.Source.MediaType, block.Source.Data))
		case block.IsText() && strings.TrimSpace(block.Text) != "":
			// the API rejects empty text blocks
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		}
	}
	return blocks
}
