package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/metrics"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// Stages label outbound calls in logs and metrics
const (
	StageDirect = "direct"
	StageNotes  = "notes"
	StageFinal  = "final"
	StageRevise = "revise"
)

// estimatedTokensPerImage is a conservative per-image input cost
const estimatedTokensPerImage = 1600

// Request is one synthesis call: a system instruction, the ordered
// conversation and an output ceiling.
type Request struct {
	System          string
	Messages        []models.ConversationTurn
	MaxOutputTokens int
	Stage           string
}

// Synthesizer generates text from multimodal conversation input.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

// EstimateTokens approximates the input size of a request for rate limiting
func EstimateTokens(req Request) int {
	chars := len(req.System)
	images := 0
	for _, turn := range req.Messages {
		for _, block := range turn.Content {
			if block.IsImage() {
				images++
				continue
			}
			chars += len(block.Text)
		}
	}
	return chars/4 + images*estimatedTokensPerImage + req.MaxOutputTokens
}

// RateLimitedSynthesizer shares one token bucket across every call it makes
// and retries rate-limit responses with backoff.
type RateLimitedSynthesizer struct {
	next    Synthesizer
	limiter *RateLimiter
	log     logger.Logger
}

func NewRateLimitedSynthesizer(next Synthesizer, limiter *RateLimiter, log logger.Logger) *RateLimitedSynthesizer {
	return &RateLimitedSynthesizer{next: next, limiter: limiter, log: log.With("llm")}
}

func (s *RateLimitedSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	stage := req.Stage
	if stage == "" {
		stage = StageDirect
	}
	start := time.Now()
	text, err := RateLimitedCall(ctx, s.limiter, EstimateTokens(req), s.log, func(ctx context.Context) (string, error) {
		return s.next.Synthesize(ctx, req)
	})
	metrics.SynthesisDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SynthesisCalls.WithLabelValues(stage, "error").Inc()
		s.log.Error("Synthesis call (%s) failed after %v: %v", stage, time.Since(start), err)
		return "", err
	}
	metrics.SynthesisCalls.WithLabelValues(stage, "ok").Inc()
	s.log.Debug("Synthesis call (%s) returned %d chars in %v", stage, len(text), time.Since(start))
	return text, nil
}

// NewSynthesizer builds the provider client named in configuration.
func NewSynthesizer(provider, apiKey, model, baseURL string) (Synthesizer, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicSynthesizer(apiKey, model, baseURL), nil
	case "openai":
		return NewOpenAISynthesizer(apiKey, model, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
