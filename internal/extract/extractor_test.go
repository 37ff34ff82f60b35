package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestExtractPlainText(t *testing.T) {
	e := NewExtractor(1)
	dir := t.TempDir()

	for _, name := range []string{"doc.txt", "doc.md", "doc.csv"} {
		path := writeFile(t, dir, name, []byte("plain content"))
		out, err := e.Extract(context.Background(), path)
		require.NoError(t, err, name)
		assert.Equal(t, "plain content", out)
	}
}

func TestExtractHTMLStripsMarkup(t *testing.T) {
	e := NewExtractor(1)
	path := writeFile(t, t.TempDir(), "page.html",
		[]byte(`<html><body><h1>Title</h1><script>alert(1)</script><p>Body text</p></body></html>`))

	out, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "Body text")
	assert.NotContains(t, out, "<p>")
	assert.NotContains(t, out, "alert")
}

func TestExtractRejectsOversized(t *testing.T) {
	e := NewExtractor(1)
	big := make([]byte, 2<<20)
	path := writeFile(t, t.TempDir(), "big.txt", big)

	_, err := e.Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestExtractUnsupportedType(t *testing.T) {
	e := NewExtractor(1)
	path := writeFile(t, t.TempDir(), "app.exe", []byte{0x4d, 0x5a})

	_, err := e.Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func writeDOCX(t *testing.T, dir string, paragraphs []string) string {
	t.Helper()
	path := filepath.Join(dir, "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractDOCX(t *testing.T) {
	e := NewExtractor(1)
	path := writeDOCX(t, t.TempDir(), []string{"First paragraph", "Second paragraph"})

	out, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, out, "First paragraph")
	assert.Contains(t, out, "Second paragraph")
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "Second"))
}

func TestExtractDOCXMissingBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<nothing/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	e := NewExtractor(1)
	_, err = e.Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no document body")
}

func TestExtractToTextWritesArtifact(t *testing.T) {
	e := NewExtractor(1)
	dir := t.TempDir()
	path := writeDOCX(t, dir, []string{"Resume content"})

	outPath, err := e.ExtractToText(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(outPath, ".txt"))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Resume content")
}

func TestExtractToTextPassthroughForTxt(t *testing.T) {
	e := NewExtractor(1)
	path := writeFile(t, t.TempDir(), "notes.txt", []byte("already text"))

	outPath, err := e.ExtractToText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, outPath)
}

func TestExtractToTextPassthroughForUnknownExtension(t *testing.T) {
	e := NewExtractor(1)
	dir := t.TempDir()

	for _, name := range []string{"notes.log", "data.json", "README"} {
		path := writeFile(t, dir, name, []byte("plain text notes"))
		outPath, err := e.ExtractToText(context.Background(), path)
		require.NoError(t, err, name)
		assert.Equal(t, path, outPath, "unconverted formats index as-is")

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Equal(t, "plain text notes", string(data))
	}
}
