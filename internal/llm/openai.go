package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Epistemic-Technology/production-breakdown/models"
)

// OpenAISynthesizer calls the OpenAI Responses API
type OpenAISynthesizer struct {
	client openai.Client
	model  string
}

func NewOpenAISynthesizer(apiKey, model, baseURL string) *OpenAISynthesizer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = shared.ChatModelGPT5Mini
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	input := make(responses.ResponseInputParam, 0, len(req.Messages))
	for _, turn := range req.Messages {
		if turn.Role == models.RoleAssistant {
			// prior assistant output is replayed as plain text
			text := joinText(turn.Content)
			if text == "" {
				continue
			}
			input = append(input, responses.ResponseInputItemParamOfMessage(text, "assistant"))
			continue
		}
		content := toOpenAIContent(turn.Content)
		if len(content) == 0 {
			continue
		}
		input = append(input, responses.ResponseInputItemParamOfMessage(content, "user"))
	}
	if len(input) == 0 {
		return "", errors.New("synthesis request has no content")
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(s.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	response, err := s.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	text := response.OutputText()
	if text == "" {
		return "", errors.New("no text content in OpenAI response")
	}
	return text, nil
}

func toOpenAIContent(content []models.ContentBlock) responses.ResponseInputMessageContentListParam {
	parts := make(responses.ResponseInputMessageContentListParam, 0, len(content))
	for _, block := range content {
		switch {
		case block.IsImage() && block.Source != nil:
			parts = append(parts, responses.ResponseInputContentUnionParam{
				OfInputImage: &responses.ResponseInputImageParam{
					ImageURL: openai.String("data:" + block.Source.MediaType + ";base64," + block.Source.Data),
					Detail:   responses.ResponseInputImageDetailAuto,
				},
			})
		case block.IsText() && strings.TrimSpace(block.Text) != "":
			parts = append(parts, responses.ResponseInputContentParamOfInputText(block.Text))
		}
	}
	return parts
}

func joinText(content []models.ContentBlock) string {
	var parts []string
	for _, block := range content {
		if block.IsText() && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
