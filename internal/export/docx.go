// Package export converts breakdown markdown into a Word document.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MediaTypeDocx is the content type of the exported document
const MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

const documentFooter = `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/></w:sectPr></w:body></w:document>`

// heading font sizes in half-points, by level
var headingSizes = map[int]int{1: 36, 2: 30, 3: 26, 4: 24, 5: 22, 6: 22}

// run is a styled span of text within a paragraph
type run struct {
	text   string
	bold   bool
	italic bool
	code   bool
	brk    bool
}

type paragraph struct {
	runs    []run
	level   int
	bullet  string
	indent  int
	spacing bool
}

// DocxExporter renders markdown headings, lists, emphasis and code into a
// WordprocessingML package.
type DocxExporter struct {
	md goldmark.Markdown
}

func NewDocxExporter() *DocxExporter {
	return &DocxExporter{md: goldmark.New(goldmark.WithExtensions(extension.Strikethrough))}
}

// Export writes the .docx archive for markdown to w.
func (e *DocxExporter) Export(w io.Writer, markdown string) error {
	if strings.TrimSpace(markdown) == "" {
		return errors.New("nothing to export")
	}
	source := []byte(markdown)
	doc := e.md.Parser().Parse(text.NewReader(source))

	c := &collector{source: source}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		c.block(n, 0)
	}

	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", renderDocument(c.paragraphs)},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(fw, p.body); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

// ExportBytes returns the .docx archive for markdown.
func (e *DocxExporter) ExportBytes(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Export(&buf, markdown); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type collector struct {
	source     []byte
	paragraphs []paragraph
}

func (c *collector) block(n ast.Node, depth int) {
	switch node := n.(type) {
	case *ast.Heading:
		c.paragraphs = append(c.paragraphs, paragraph{runs: c.inlines(node), level: node.Level, spacing: true})
	case *ast.Paragraph, *ast.TextBlock:
		c.paragraphs = append(c.paragraphs, paragraph{runs: c.inlines(node), indent: depth})
	case *ast.List:
		index := node.Start
		if index == 0 {
			index = 1
		}
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "•"
			if node.IsOrdered() {
				marker = fmt.Sprintf("%d.", index)
				index++
			}
			c.listItem(item, depth+1, marker)
		}
	case *ast.Blockquote:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			c.block(child, depth+1)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			line := strings.TrimRight(string(seg.Value(c.source)), "\n")
			c.paragraphs = append(c.paragraphs, paragraph{runs: []run{{text: line, code: true}}, indent: depth})
		}
	case *ast.ThematicBreak:
		c.paragraphs = append(c.paragraphs, paragraph{})
	default:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			c.block(child, depth)
		}
	}
}

// listItem attaches the marker to the item's first paragraph; nested
// blocks follow at the deeper indent.
func (c *collector) listItem(item ast.Node, depth int, marker string) {
	first := true
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			p := paragraph{runs: c.inlines(child), indent: depth}
			if first {
				p.bullet = marker
				first = false
			}
			c.paragraphs = append(c.paragraphs, p)
		default:
			c.block(child, depth)
		}
	}
	if first {
		c.paragraphs = append(c.paragraphs, paragraph{bullet: marker, indent: depth})
	}
}

func (c *collector) inlines(n ast.Node) []run {
	var runs []run
	var walk func(n ast.Node, style run)
	walk = func(n ast.Node, style run) {
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			switch node := child.(type) {
			case *ast.Text:
				r := style
				r.text = string(node.Segment.Value(c.source))
				runs = append(runs, r)
				if node.HardLineBreak() {
					runs = append(runs, run{brk: true})
				} else if node.SoftLineBreak() {
					r := style
					r.text = " "
					runs = append(runs, r)
				}
			case *ast.String:
				r := style
				r.text = string(node.Value)
				runs = append(runs, r)
			case *ast.Emphasis:
				s := style
				if node.Level >= 2 {
					s.bold = true
				} else {
					s.italic = true
				}
				walk(node, s)
			case *ast.CodeSpan:
				s := style
				s.code = true
				walk(node, s)
			case *ast.AutoLink:
				r := style
				r.text = string(node.URL(c.source))
				runs = append(runs, r)
			default:
				walk(child, style)
			}
		}
	}
	walk(n, run{})
	return runs
}

func renderDocument(paragraphs []paragraph) string {
	var b strings.Builder
	b.WriteString(documentHeader)
	for _, p := range paragraphs {
		writeParagraph(&b, p)
	}
	b.WriteString(documentFooter)
	return b.String()
}

func writeParagraph(b *strings.Builder, p paragraph) {
	b.WriteString("<w:p>")
	if p.indent > 0 || p.spacing {
		b.WriteString("<w:pPr>")
		if p.spacing {
			b.WriteString(`<w:spacing w:before="240" w:after="120"/>`)
		}
		if p.indent > 0 {
			left := 360 * p.indent
			if p.bullet != "" {
				fmt.Fprintf(b, `<w:ind w:left="%d" w:hanging="360"/>`, left+360)
			} else {
				fmt.Fprintf(b, `<w:ind w:left="%d"/>`, left+360)
			}
		}
		b.WriteString("</w:pPr>")
	}
	if p.bullet != "" {
		writeRun(b, run{text: p.bullet + "\t"}, 0)
	}
	for _, r := range p.runs {
		size := 0
		if p.level > 0 {
			r.bold = true
			size = headingSizes[p.level]
		}
		writeRun(b, r, size)
	}
	b.WriteString("</w:p>")
}

func writeRun(b *strings.Builder, r run, size int) {
	if r.brk {
		b.WriteString("<w:r><w:br/></w:r>")
		return
	}
	if r.text == "" {
		return
	}
	b.WriteString("<w:r>")
	if r.bold || r.italic || r.code || size > 0 {
		b.WriteString("<w:rPr>")
		if r.code {
			b.WriteString(`<w:rFonts w:ascii="Consolas" w:hAnsi="Consolas" w:cs="Consolas"/>`)
		}
		if r.bold {
			b.WriteString("<w:b/>")
		}
		if r.italic {
			b.WriteString("<w:i/>")
		}
		if size > 0 {
			fmt.Fprintf(b, `<w:sz w:val="%d"/>`, size)
		}
		b.WriteString("</w:rPr>")
	}
	if strings.Contains(r.text, "\t") {
		parts := strings.Split(r.text, "\t")
		for i, part := range parts {
			if i > 0 {
				b.WriteString("<w:tab/>")
			}
			writeText(b, part)
		}
	} else {
		writeText(b, r.text)
	}
	b.WriteString("</w:r>")
}

func writeText(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	xml.EscapeText(b, []byte(s))
	b.WriteString("</w:t>")
}
