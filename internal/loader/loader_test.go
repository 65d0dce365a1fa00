package loader

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("  hello world\n"), 0o644))

	got, err := New().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, 1, got.Pages)
}

func TestLoadMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody text."), 0o644))

	got, err := New().Load(path)
	require.NoError(t, err)
	assert.Contains(t, got.Content, "Body text.")
}

func TestLoadDOCX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body><w:p><w:t>linear algebra notes</w:t></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	got, err := New().Load(path)
	require.NoError(t, err)
	assert.Contains(t, got.Content, "linear algebra notes")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))

	_, err := New().Load(path)
	assert.True(t, errors.Is(err, ErrUnsupportedExtension))
}

func TestLoadCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := New().Load(path)
	require.Error(t, err)
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}
