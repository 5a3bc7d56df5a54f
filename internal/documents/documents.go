package documents

import (
	"bytes"
	"mime"
	"strings"
)

// Media types the pipeline understands
const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeGIF  = "image/gif"
	MediaTypeWebP = "image/webp"
	MediaTypeText = "text/plain"
	// MediaTypeUnknown marks content the pipeline does not forward
	MediaTypeUnknown = "application/octet-stream"
)

// IsImage reports whether the media type can be passed to the model verbatim
func IsImage(mediaType string) bool {
	switch mediaType {
	case MediaTypePNG, MediaTypeJPEG, MediaTypeGIF, MediaTypeWebP:
		return true
	}
	return false
}

// ResolveMediaType picks the media type for an upload. A hint naming a
// supported type wins; anything else falls back to sniffing the content.
func ResolveMediaType(hint string, head []byte) string {
	if hint != "" {
		if parsed, _, err := mime.ParseMediaType(hint); err == nil {
			parsed = strings.ToLower(parsed)
			if parsed == "image/jpg" {
				parsed = MediaTypeJPEG
			}
			if parsed == MediaTypePDF || IsImage(parsed) {
				return parsed
			}
		}
	}
	return DetectMediaType(head)
}

// DetectMediaType determines the type of document from the raw data
// by checking magic bytes/headers
func DetectMediaType(data []byte) string {
	if len(data) == 0 {
		return MediaTypeUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return MediaTypePDF
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return MediaTypePNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return MediaTypeJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return MediaTypeGIF
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return MediaTypeWebP
	}

	if isLikelyText(data) {
		return MediaTypeText
	}
	return MediaTypeUnknown
}

// isLikelyText checks if the data is likely plain text (no binary content)
func isLikelyText(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sample := data[:min(len(data), 512)]
	if bytes.Contains(sample, []byte{0}) {
		return false
	}

	printable := 0
	for _, b := range sample {
		if (b >= 32 && b <= 126) || b == '\n' || b == '\r' || b == '\t' || b >= 0x80 {
			printable++
		}
	}
	return float64(printable)/float64(len(sample)) > 0.9
}
