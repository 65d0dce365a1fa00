package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptyText is returned when the input yields no chunks. A document that
// produces zero chunks is a processing failure, never an empty success.
var ErrEmptyText = errors.New("no chunks generated from text")

type Options struct {
	ChunkSize int // max chunk size in runes, including overlap
	Overlap   int // runes carried over from the previous chunk
}

func DefaultOptions() Options {
	return Options{ChunkSize: 1000, Overlap: 200}
}

// Chunk is one bounded window of the source text. Overlap is the number of
// leading runes duplicated from the previous chunk; stripping it from every
// chunk after the first reassembles the original text exactly.
type Chunk struct {
	Content string
	Index   int
	Overlap int
}

type Chunker struct {
	opts Options
}

func New(opts Options) *Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.ChunkSize {
		opts.Overlap = opts.ChunkSize / 4
	}
	return &Chunker{opts: opts}
}

// Split cuts text into overlapping windows of at most ChunkSize runes,
// preferring paragraph, then sentence, then word boundaries before falling
// back to hard rune cuts.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	// Segments are contiguous, non-overlapping and concatenate back to the
	// original text. Each is sized so that prepending the overlap still
	// fits within ChunkSize.
	target := c.opts.ChunkSize - c.opts.Overlap
	segments := splitSegments(text, []string{"\n\n", "\n", ". ", " "}, target)

	chunks := make([]Chunk, 0, len(segments))
	prev := ""
	for i, seg := range segments {
		overlap := ""
		if i > 0 && c.opts.Overlap > 0 {
			overlap = tail(prev, c.opts.Overlap)
		}
		chunks = append(chunks, Chunk{
			Content: overlap + seg,
			Index:   i,
			Overlap: utf8.RuneCountInString(overlap),
		})
		prev = seg
	}

	return chunks, nil
}

// splitSegments cuts text into pieces of at most maxSize runes whose
// concatenation reproduces text exactly. Separators are tried in order;
// each split keeps the separator attached to the preceding piece.
func splitSegments(text string, separators []string, maxSize int) []string {
	if utf8.RuneCountInString(text) <= maxSize {
		return []string{text}
	}

	if len(separators) == 0 {
		return splitRunes(text, maxSize)
	}

	parts := strings.SplitAfter(text, separators[0])
	var result []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		result = append(result, splitSegments(current.String(), separators[1:], maxSize)...)
		current.Reset()
		currentLen = 0
	}

	for _, part := range parts {
		n := utf8.RuneCountInString(part)
		if currentLen > 0 && currentLen+n > maxSize {
			flush()
		}
		current.WriteString(part)
		currentLen += n
	}
	flush()

	return result
}

func splitRunes(text string, maxSize int) []string {
	runes := []rune(text)
	var result []string
	for i := 0; i < len(runes); i += maxSize {
		end := i + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		result = append(result, string(runes[i:end]))
	}
	return result
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
