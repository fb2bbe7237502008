package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".docx", ".xlsx", ".ods", ".md", ".txt", ".PDF", ".TXT"} {
		assert.True(t, Supported(ext), ext)
	}
	for _, ext := range []string{".png", ".exe", "", ".doc"} {
		assert.False(t, Supported(ext), ext)
	}
}

func TestTextUnsupportedFormat(t *testing.T) {
	_, err := Text("document.xyz")
	assert.ErrorContains(t, err, "unsupported file format")
}

func TestPlainText(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "line one\nline two\n")
	text, err := Text(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", text)
}

func TestMarkdownTextStripsFormatting(t *testing.T) {
	src := `# Course Syllabus

Late submissions lose **10%** per day.

- Office hours: Thursday
- Location: *Room 101*
`
	path := writeTempFile(t, "syllabus.md", src)
	text, err := Text(path)
	require.NoError(t, err)

	assert.Contains(t, text, "Course Syllabus")
	assert.Contains(t, text, "10%")
	assert.Contains(t, text, "Office hours: Thursday")
	assert.Contains(t, text, "Room 101")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "# ")
}

func TestXMLRunText(t *testing.T) {
	content := `<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>`
	assert.Equal(t, "Hello world", xmlRunText(content, "<w:t"))
}

func TestXMLRunTextIgnoresSimilarTags(t *testing.T) {
	content := `<w:tbl><w:tr>ignored</w:tr></w:tbl><w:t>kept</w:t>`
	assert.Equal(t, "kept", xmlRunText(content, "<w:t"))
}

func TestXMLRunTextSelfClosing(t *testing.T) {
	content := `<w:t/><w:t>after</w:t>`
	assert.Equal(t, "after", xmlRunText(content, "<w:t"))
}
