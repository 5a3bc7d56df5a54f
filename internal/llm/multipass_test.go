package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// recordingSynth answers notes calls with a tag derived from the input and
// records every request it sees.
type recordingSynth struct {
	mu       sync.Mutex
	requests []Request
	failOn   string
}

func (s *recordingSynth) Synthesize(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	input := req.Messages[0].Content[len(req.Messages[0].Content)-1].Text
	if s.failOn != "" && strings.Contains(input, s.failOn) {
		return "", errors.New("upstream failure")
	}
	if req.Stage == StageNotes {
		// earlier blocks answer later so completion order differs from input order
		if strings.Contains(input, "block-0") {
			time.Sleep(5 * time.Millisecond)
		}
		return "notes(" + strings.Fields(input)[0] + ")", nil
	}
	return "final breakdown", nil
}

func (s *recordingSynth) byStage(stage string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

func TestMultiPassSummarize(t *testing.T) {
	synth := &recordingSynth{}
	m := NewMultiPassSummarizer(synth, 2, 500, 4000, logger.NewNoOpLogger())

	blocks := []models.ContentBlock{
		models.TextBlock("instruction: produce a breakdown"),
		models.ImageBlock("image/png", "AAAA"),
	}
	for i := 0; i < 4; i++ {
		blocks = append(blocks, models.TextBlock(fmt.Sprintf("block-%d body text", i)))
	}

	result, err := m.Summarize(context.Background(), "system rules", blocks, true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if result.Text != "final breakdown" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.NotesCount != 4 {
		t.Errorf("NotesCount = %d, want 4", result.NotesCount)
	}

	notes := synth.byStage(StageNotes)
	if len(notes) != 4 {
		t.Fatalf("Expected 4 notes calls, got %d", len(notes))
	}
	for _, r := range notes {
		if r.System != notesSystemPrompt {
			t.Error("Notes call did not use the notes prompt")
		}
		if strings.Contains(r.Messages[0].Content[0].Text, "instruction") {
			t.Error("Leading instruction was sent to the notes pass")
		}
		if len(r.Messages) != 1 || len(r.Messages[0].Content) != 1 {
			t.Error("Notes call should carry exactly one block")
		}
	}

	finals := synth.byStage(StageFinal)
	if len(finals) != 1 {
		t.Fatalf("Expected 1 final call, got %d", len(finals))
	}
	final := finals[0]
	if final.System != "system rules" || final.MaxOutputTokens != 4000 {
		t.Errorf("Final call has wrong system or token ceiling: %+v", final)
	}
	content := final.Messages[0].Content
	if len(content) != 2 || !content[0].IsImage() || !content[1].IsText() {
		t.Fatalf("Final content should be [image, notes], got %d blocks", len(content))
	}
	combined := content[1].Text
	if strings.Contains(combined, "body text") {
		t.Error("Final call should not see raw source text")
	}
	last := -1
	for i := 0; i < 4; i++ {
		idx := strings.Index(combined, fmt.Sprintf("notes(block-%d)", i))
		if idx < 0 || idx < last {
			t.Fatalf("Notes out of order in combined text:\n%s", combined)
		}
		last = idx
	}
	if !strings.Contains(combined, "----- NOTES 1/4 -----") {
		t.Error("Combined notes missing separators")
	}
	if len(result.FinalContent) != 2 {
		t.Errorf("FinalContent should mirror the final call content")
	}
}

func TestMultiPassSummarize_NotesFailureIsFatal(t *testing.T) {
	synth := &recordingSynth{failOn: "block-2"}
	m := NewMultiPassSummarizer(synth, 4, 500, 4000, logger.NewNoOpLogger())

	blocks := []models.ContentBlock{
		models.TextBlock("block-1 text"),
		models.TextBlock("block-2 text"),
		models.TextBlock("block-3 text"),
	}
	if _, err := m.Summarize(context.Background(), "system", blocks, false); err == nil {
		t.Fatal("Expected failure when a notes call fails")
	}
	if n := len(synth.byStage(StageFinal)); n != 0 {
		t.Errorf("Final call should not run after notes failure, ran %d", n)
	}
}

func TestPartitionBlocks(t *testing.T) {
	blocks := []models.ContentBlock{
		models.TextBlock("=== BEGIN FILE: scan.pdf (page 1 image) ==="),
		models.ImageBlock("image/jpeg", "AAAA"),
		models.TextBlock("=== END FILE: scan.pdf (page 1 image) ==="),
		models.TextBlock("=== BEGIN FILE: a.pdf (text chunk 1/1) ===\nbody\n=== END FILE: a.pdf (text chunk 1/1) ==="),
		models.TextBlock("   "),
	}
	visual, texts := PartitionBlocks(blocks)
	if len(visual) != 3 {
		t.Errorf("Expected image with both markers in visual group, got %d", len(visual))
	}
	if len(texts) != 1 || !strings.Contains(texts[0], "body") {
		t.Errorf("Unexpected text group: %q", texts)
	}
}
