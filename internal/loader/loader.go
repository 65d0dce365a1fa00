package loader

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedExtension is returned when no parser exists for the file.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// ParseError wraps a failure of an underlying parser. The document it
// belongs to is marked failed by the caller.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type Extracted struct {
	Content string
	Pages   int
}

type Loader struct{}

func New() *Loader { return &Loader{} }

// Load extracts plain text from the file at path, dispatching on extension.
func (l *Loader) Load(path string) (*Extracted, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".docx":
		return loadDOCX(path)
	case ".txt", ".md":
		return loadText(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, filepath.Ext(path))
	}
}

func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".txt", ".md"}
}

func loadPDF(path string) (*Extracted, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &Extracted{Content: buf.String(), Pages: numPages}, nil
}

func loadDOCX(path string) (*Extracted, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer reader.Close()

	var buf strings.Builder
	for _, f := range reader.File {
		if filepath.Base(f.Name) != "document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		buf.WriteString(stripXMLTags(string(content)))
		break
	}

	return &Extracted{Content: buf.String(), Pages: 1}, nil
}

func loadText(path string) (*Extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &Extracted{Content: strings.TrimSpace(string(data)), Pages: 1}, nil
}

func stripXMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}
	// Collapse whitespace
	return strings.Join(strings.Fields(result.String()), " ")
}
