package models

import (
	"errors"
	"fmt"
)

// Block types carried in ContentBlock.Type
const (
	BlockTypeText  = "text"
	BlockTypeImage = "image"
)

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UploadedFile is a client-supplied file saved under the uploads directory.
// It is owned by a single request and removed when that request finishes.
type UploadedFile struct {
	OriginalName string `json:"original_name"`
	StoragePath  string `json:"storage_path"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeHint     string `json:"mime_hint,omitempty"`
}

// ImageSource holds base64 encoded image data
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is one unit of model input: either text or an image.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// TextBlock returns a text content block
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// ImageBlock returns a base64 image content block
func ImageBlock(mediaType, base64Data string) ContentBlock {
	return ContentBlock{
		Type: BlockTypeImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64Data,
		},
	}
}

func (b ContentBlock) IsText() bool  { return b.Type == BlockTypeText }
func (b ContentBlock) IsImage() bool { return b.Type == BlockTypeImage }

// Validate checks that the block is a well-formed text or image block
func (b ContentBlock) Validate() error {
	switch b.Type {
	case BlockTypeText:
		if b.Source != nil {
			return errors.New("text block must not carry an image source")
		}
		return nil
	case BlockTypeImage:
		if b.Source == nil {
			return errors.New("image block missing source")
		}
		if b.Source.MediaType == "" || b.Source.Data == "" {
			return errors.New("image block missing media type or data")
		}
		return nil
	default:
		return fmt.Errorf("unknown content block type %q", b.Type)
	}
}

// PdfDiagnostics describes how a single PDF was ingested.
type PdfDiagnostics struct {
	Filename       string `json:"filename"`
	PageCount      int    `json:"page_count"`
	ExtractedChars int    `json:"extracted_chars"`
	ChunkCount     int    `json:"chunk_count"`
	VisualFallback bool   `json:"visual_fallback"`
	RenderedPages  int    `json:"rendered_pages"`
}

// ConversationTurn is one message of the conversation history.
type ConversationTurn struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ConversationHistory is the ordered turn sequence carried between generate
// and revise calls.
type ConversationHistory []ConversationTurn

// Validate rejects malformed histories: unknown roles, empty turns or
// malformed blocks.
func (h ConversationHistory) Validate() error {
	for i, turn := range h {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("turn %d: invalid role %q", i, turn.Role)
		}
		if len(turn.Content) == 0 {
			return fmt.Errorf("turn %d: empty content", i)
		}
		for j, block := range turn.Content {
			if err := block.Validate(); err != nil {
				return fmt.Errorf("turn %d block %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// BreakdownResult is returned by generate and revise.
type BreakdownResult struct {
	Text                string              `json:"breakdown"`
	ConversationHistory ConversationHistory `json:"conversationHistory"`
	// SessionID is set when the history is also held server-side
	SessionID string `json:"sessionId,omitempty"`
}

// SourceInfo describes where a remotely fetched document comes from
type SourceInfo struct {
	ZoteroID  string `json:"zotero_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}
