package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/metrics"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

const notesSystemPrompt = `You extract facts from one excerpt of a production brief.
Output compact bullet points under these headings, in this order, omitting headings with no facts:

## Deliverables
## Formats & Specs
## Schedule & Deadlines
## Locations
## Talent & Crew
## Equipment & Props
## Budget
## Approvals & Stakeholders
## Legal & Usage
## Other

Rules:
- Record only what the excerpt states. Do not infer, summarize intent, or add recommendations.
- Keep numbers, dates, names and quantities exactly as written.
- Prefix anything ambiguous or partially legible with "UNCERTAIN:".
- The excerpt may start or end mid-sentence; do not guess the missing text.`

const finalNotesInstruction = `The source documents were too long to send whole. Below are fact-only notes extracted from each excerpt, in document order.
Build the production breakdown from these notes. Any images above are for visual corroboration only: use them to confirm what the notes say, and when an image appears to contradict the notes, list the discrepancy under open questions instead of choosing one version.`

// MultiPassResult is the output of a notes-then-final summarization run
type MultiPassResult struct {
	Text string
	// FinalContent is the user content actually sent to the final call
	FinalContent []models.ContentBlock
	NotesCount   int
}

// MultiPassSummarizer condenses each text block into notes independently,
// then synthesizes the breakdown from the notes plus any images.
type MultiPassSummarizer struct {
	synth          Synthesizer
	concurrency    int
	notesMaxTokens int
	finalMaxTokens int
	log            logger.Logger
}

func NewMultiPassSummarizer(synth Synthesizer, concurrency, notesMaxTokens, finalMaxTokens int, log logger.Logger) *MultiPassSummarizer {
	return &MultiPassSummarizer{
		synth:          synth,
		concurrency:    concurrency,
		notesMaxTokens: notesMaxTokens,
		finalMaxTokens: finalMaxTokens,
		log:            log.With("multipass"),
	}
}

// Summarize runs the two stages. When skipLeading is set the first block is
// treated as the task instruction and kept out of the notes pass. A failed
// notes request fails the whole run.
func (m *MultiPassSummarizer) Summarize(ctx context.Context, system string, blocks []models.ContentBlock, skipLeading bool) (*MultiPassResult, error) {
	start := time.Now()
	if skipLeading && len(blocks) > 0 && blocks[0].IsText() {
		blocks = blocks[1:]
	}
	visual, texts := PartitionBlocks(blocks)
	m.log.Info("Multi-pass: %d text blocks for notes, %d visual blocks", len(texts), len(visual))
	metrics.MultiPassRuns.Inc()

	notes, err := ParallelProcess(ctx, texts, m.concurrency, func(ctx context.Context, i int, text string) (string, error) {
		m.log.Debug("Extracting notes for block %d/%d", i+1, len(texts))
		out, err := m.synth.Synthesize(ctx, Request{
			System: notesSystemPrompt,
			Messages: []models.ConversationTurn{
				{Role: models.RoleUser, Content: []models.ContentBlock{models.TextBlock(text)}},
			},
			MaxOutputTokens: m.notesMaxTokens,
			Stage:           StageNotes,
		})
		if err != nil {
			return "", fmt.Errorf("notes for block %d: %w", i+1, err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	final := make([]models.ContentBlock, 0, len(visual)+1)
	final = append(final, visual...)
	final = append(final, models.TextBlock(finalNotesInstruction+"\n\n"+CombineNotes(notes)))

	text, err := m.synth.Synthesize(ctx, Request{
		System: system,
		Messages: []models.ConversationTurn{
			{Role: models.RoleUser, Content: final},
		},
		MaxOutputTokens: m.finalMaxTokens,
		Stage:           StageFinal,
	})
	if err != nil {
		return nil, fmt.Errorf("final synthesis: %w", err)
	}

	m.log.Info("Multi-pass finished in %v", time.Since(start))
	return &MultiPassResult{Text: text, FinalContent: final, NotesCount: len(notes)}, nil
}

// CombineNotes joins per-block notes in order, each under a visible rule.
func CombineNotes(notes []string) string {
	var b strings.Builder
	for i, n := range notes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "----- NOTES %d/%d -----\n%s", i+1, len(notes), strings.TrimSpace(n))
	}
	return b.String()
}

// PartitionBlocks splits assembled content into the visual group (images and
// the single-line markers bracketing them) and the text contents to condense.
func PartitionBlocks(blocks []models.ContentBlock) ([]models.ContentBlock, []string) {
	var visual []models.ContentBlock
	var texts []string
	for i, block := range blocks {
		if block.IsImage() {
			visual = append(visual, block)
			continue
		}
		if isImageMarker(blocks, i) {
			visual = append(visual, block)
			continue
		}
		if strings.TrimSpace(block.Text) != "" {
			texts = append(texts, block.Text)
		}
	}
	return visual, texts
}

func isImageMarker(blocks []models.ContentBlock, i int) bool {
	text := blocks[i].Text
	if !strings.HasPrefix(text, "=== ") || strings.Contains(text, "\n") {
		return false
	}
	next := i+1 < len(blocks) && blocks[i+1].IsImage()
	prev := i > 0 && blocks[i-1].IsImage()
	return next || prev
}
