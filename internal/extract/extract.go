// Package extract pulls plain text out of page-structured source documents.
// Each document yields one concatenated string, page order preserved.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// pageSeparator joins pages, slides, and sheets in reading order.
const pageSeparator = "\n\n"

var extensions = map[string]func(string) (string, error){
	".pdf":  pdfText,
	".docx": docxText,
	".xlsx": sheetText,
	".ods":  sheetText,
	".md":   markdownText,
	".txt":  plainText,
}

// Supported reports whether files with the given extension can be ingested.
func Supported(ext string) bool {
	_, ok := extensions[strings.ToLower(ext)]
	return ok
}

// Text extracts the full text of the document at path.
func Text(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := extensions[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}
	return fn(path)
}

func pdfText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, pageSeparator), nil
}

func docxText(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw document.xml; paragraph and text runs are
	// pulled out of the w:p / w:t elements.
	content := r.Editable().GetContent()
	var b strings.Builder
	for _, para := range strings.Split(content, "</w:p>") {
		text := xmlRunText(para, "<w:t")
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString(pageSeparator)
	}
	return strings.TrimSuffix(b.String(), pageSeparator), nil
}

func sheetText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		var b strings.Builder
		b.WriteString("Sheet: " + name + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		sheets = append(sheets, b.String())
	}
	return strings.Join(sheets, pageSeparator), nil
}

// markdownText parses markdown and walks the AST, keeping text content and
// block structure while dropping formatting syntax.
func markdownText(path string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(source))

	var b strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteString("\n")
				}
			}
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && b.Len() > 0 {
			b.WriteString(pageSeparator)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

func plainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// xmlRunText collects the character data of every occurrence of the given
// opening tag (e.g. "<w:t" matches both <w:t> and <w:t xml:space="preserve">).
func xmlRunText(content, openTag string) string {
	var b strings.Builder
	rest := content
	for {
		idx := strings.Index(rest, openTag)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(openTag):]
		// Require a real tag boundary so "<w:t" does not match "<w:tbl".
		if rest != "" && rest[0] != '>' && rest[0] != ' ' && rest[0] != '/' {
			continue
		}
		gt := strings.Index(rest, ">")
		if gt < 0 {
			break
		}
		// Self-closing run, no text.
		if strings.HasSuffix(rest[:gt], "/") {
			rest = rest[gt+1:]
			continue
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, "</")
		if end < 0 {
			break
		}
		b.WriteString(rest[:end])
		rest = rest[end:]
	}
	return b.String()
}
