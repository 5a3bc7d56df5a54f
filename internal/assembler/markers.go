package assembler

import "fmt"

// Markers bracket every block derived from a file so the model can attribute
// facts and never merges two files.

func chunkStartMarker(name string, index, total int) string {
	return fmt.Sprintf("=== BEGIN FILE: %s (text chunk %d/%d) ===", name, index, total)
}

func chunkEndMarker(name string, index, total int) string {
	return fmt.Sprintf("=== END FILE: %s (text chunk %d/%d) ===", name, index, total)
}

func chunkBlock(name string, index, total int, text string) string {
	return chunkStartMarker(name, index, total) + "\n" + text + "\n" + chunkEndMarker(name, index, total)
}

func pageStartMarker(name string, page int) string {
	return fmt.Sprintf("=== BEGIN FILE: %s (page %d image) ===", name, page)
}

func pageEndMarker(name string, page int) string {
	return fmt.Sprintf("=== END FILE: %s (page %d image) ===", name, page)
}

func degradedNotice(name string, chars, pages int) string {
	return fmt.Sprintf("=== NOTE FOR FILE: %s ===\nOnly %d characters of text were extracted from %d pages and page images could not be rendered on this server. "+
		"The document is probably scanned or image-based; treat its content as incomplete and raise missing details as questions.\n=== END NOTE: %s ===",
		name, chars, pages, name)
}

func noTextNotice(name string) string {
	return fmt.Sprintf("=== FILE: %s ===\n(no extractable text)\n=== END FILE: %s ===", name, name)
}
