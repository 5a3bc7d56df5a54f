// Package breakdown orchestrates generating and revising production
// breakdowns from uploaded documents.
package breakdown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Epistemic-Technology/production-breakdown/internal/assembler"
	"github.com/Epistemic-Technology/production-breakdown/internal/llm"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/metrics"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// ErrSessionNotFound is returned by a SessionStore for unknown ids
var ErrSessionNotFound = errors.New("session not found")

// Assembler builds model content from uploaded files.
type Assembler interface {
	Assemble(ctx context.Context, files []models.UploadedFile, leadingInstruction string) (*assembler.Result, error)
}

// Summarizer condenses oversized content in two stages.
type Summarizer interface {
	Summarize(ctx context.Context, system string, blocks []models.ContentBlock, skipLeading bool) (*llm.MultiPassResult, error)
}

// Cleaner removes uploaded files once a request is done with them.
type Cleaner interface {
	Cleanup(files []models.UploadedFile)
}

// SessionStore keeps conversation histories server-side.
type SessionStore interface {
	SaveSession(ctx context.Context, history models.ConversationHistory) (string, error)
	LoadSession(ctx context.Context, id string) (models.ConversationHistory, error)
	UpdateSession(ctx context.Context, id string, history models.ConversationHistory) error
}

type Options struct {
	MaxFiles           int
	MultiPassThreshold int
	MaxOutputTokens    int
	// CredentialConfigured reports whether the synthesis backend has an API key
	CredentialConfigured bool
}

// ReviseRequest asks for one revision of an existing breakdown. The history
// comes from the client or, when SessionID is set and the history is empty,
// from the session store.
type ReviseRequest struct {
	RevisionRequest     string                     `json:"revisionRequest"`
	CurrentBreakdown    string                     `json:"currentBreakdown"`
	ConversationHistory models.ConversationHistory `json:"conversationHistory"`
	SessionID           string                     `json:"sessionId,omitempty"`
}

type Service struct {
	assembler  Assembler
	synth      llm.Synthesizer
	summarizer Summarizer
	cleaner    Cleaner
	sessions   SessionStore
	opts       Options
	log        logger.Logger
}

// NewService wires the pipeline. sessions may be nil.
func NewService(asm Assembler, synth llm.Synthesizer, summarizer Summarizer, cleaner Cleaner, sessions SessionStore, opts Options, log logger.Logger) *Service {
	return &Service{
		assembler:  asm,
		synth:      synth,
		summarizer: summarizer,
		cleaner:    cleaner,
		sessions:   sessions,
		opts:       opts,
		log:        log.With("breakdown"),
	}
}

// Generate produces a breakdown from files. Every file is removed from
// upload storage before Generate returns, whatever the outcome.
func (s *Service) Generate(ctx context.Context, files []models.UploadedFile) (result *models.BreakdownResult, err error) {
	start := time.Now()
	defer s.cleaner.Cleanup(files)
	defer func() { s.observe("generate", start, err) }()

	if len(files) == 0 {
		return nil, inputError("no files uploaded", nil)
	}
	if s.opts.MaxFiles > 0 && len(files) > s.opts.MaxFiles {
		return nil, inputError(fmt.Sprintf("too many files: at most %d allowed", s.opts.MaxFiles), nil)
	}
	if err := s.checkConfigured(); err != nil {
		return nil, err
	}

	assembled, err := s.assembler.Assemble(ctx, files, GenerateInstruction)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to process uploaded files", Err: err}
	}
	for _, d := range assembled.Diagnostics {
		s.log.Info("PDF %s: pages=%d chars=%d chunks=%d visualFallback=%t renderedPages=%d",
			d.Filename, d.PageCount, d.ExtractedChars, d.ChunkCount, d.VisualFallback, d.RenderedPages)
	}
	s.log.Info("Assembled %d blocks from %d files, %d extracted chars", len(assembled.Blocks), len(files), assembled.TotalExtractedChars)

	var text string
	var sent []models.ContentBlock
	if s.usesMultiPass(assembled.TotalExtractedChars) {
		s.log.Info("Extracted text at or above %d chars, using multi-pass", s.opts.MultiPassThreshold)
		mp, err := s.summarizer.Summarize(ctx, SystemInstructions, assembled.Blocks, true)
		if err != nil {
			return nil, summarizationError(err)
		}
		text, sent = mp.Text, mp.FinalContent
	} else {
		sent = assembled.Blocks
		text, err = s.synth.Synthesize(ctx, llm.Request{
			System: SystemInstructions,
			Messages: []models.ConversationTurn{
				{Role: models.RoleUser, Content: sent},
			},
			MaxOutputTokens: s.opts.MaxOutputTokens,
			Stage:           llm.StageDirect,
		})
		if err != nil {
			return nil, summarizationError(err)
		}
	}

	result = &models.BreakdownResult{
		Text: text,
		ConversationHistory: models.ConversationHistory{
			{Role: models.RoleUser, Content: sent},
			{Role: models.RoleAssistant, Content: []models.ContentBlock{models.TextBlock(text)}},
		},
	}
	if s.sessions != nil {
		id, err := s.sessions.SaveSession(ctx, result.ConversationHistory)
		if err != nil {
			// the breakdown is still usable through the client-held history
			s.log.Warn("Failed to save session: %v", err)
		} else {
			result.SessionID = id
		}
	}
	return result, nil
}

// Revise applies one round of feedback. The returned history is the input
// history followed by the new user and assistant turns.
func (s *Service) Revise(ctx context.Context, req ReviseRequest) (result *models.BreakdownResult, err error) {
	start := time.Now()
	defer func() { s.observe("revise", start, err) }()

	if strings.TrimSpace(req.RevisionRequest) == "" {
		return nil, inputError("revisionRequest is required", nil)
	}
	if strings.TrimSpace(req.CurrentBreakdown) == "" {
		return nil, inputError("currentBreakdown is required", nil)
	}

	history := req.ConversationHistory
	if len(history) == 0 && req.SessionID != "" {
		history, err = s.loadSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	}
	if err := history.Validate(); err != nil {
		return nil, inputError("malformed conversationHistory", err)
	}
	if err := s.checkConfigured(); err != nil {
		return nil, err
	}

	userTurn := models.ConversationTurn{
		Role:    models.RoleUser,
		Content: []models.ContentBlock{models.TextBlock(revisionPrompt(req.RevisionRequest, req.CurrentBreakdown))},
	}
	messages := make([]models.ConversationTurn, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, userTurn)

	text, err := s.synth.Synthesize(ctx, llm.Request{
		System:          SystemInstructions,
		Messages:        messages,
		MaxOutputTokens: s.opts.MaxOutputTokens,
		Stage:           llm.StageRevise,
	})
	if err != nil {
		return nil, summarizationError(err)
	}

	updated := make(models.ConversationHistory, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, userTurn, models.ConversationTurn{
		Role:    models.RoleAssistant,
		Content: []models.ContentBlock{models.TextBlock(text)},
	})
	result = &models.BreakdownResult{Text: text, ConversationHistory: updated}

	if s.sessions != nil && req.SessionID != "" {
		if err := s.sessions.UpdateSession(ctx, req.SessionID, updated); err != nil {
			s.log.Warn("Failed to update session %s: %v", req.SessionID, err)
		} else {
			result.SessionID = req.SessionID
		}
	}
	return result, nil
}

func (s *Service) usesMultiPass(totalChars int) bool {
	return s.summarizer != nil && s.opts.MultiPassThreshold > 0 && totalChars >= s.opts.MultiPassThreshold
}

func (s *Service) checkConfigured() error {
	if s.synth == nil || !s.opts.CredentialConfigured {
		return &Error{Kind: KindConfig, Message: "summarization service is not configured"}
	}
	return nil
}

func (s *Service) loadSession(ctx context.Context, id string) (models.ConversationHistory, error) {
	if s.sessions == nil {
		return nil, inputError("sessions are not enabled", nil)
	}
	history, err := s.sessions.LoadSession(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, inputError("unknown sessionId", err)
	}
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to load session", Err: err}
	}
	return history, nil
}

func (s *Service) observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = KindOf(err).String()
		s.log.Error("%s failed: %v", operation, err)
	}
	metrics.RequestsTotal.WithLabelValues(operation, status).Inc()
	metrics.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func summarizationError(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindInternal, Message: "request cancelled", Err: err}
	}
	return &Error{Kind: KindSummarization, Message: "failed to generate breakdown", Err: err}
}
