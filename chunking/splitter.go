package chunking

import (
	"errors"
	"fmt"

	"github.com/poiesic/itk/core"
)

const (
	// DefaultChunkSize is the window length in runes.
	DefaultChunkSize = 750
	// DefaultChunkOverlap is the number of runes shared by adjacent chunks.
	DefaultChunkOverlap = 50
)

var (
	// ErrInvalidChunkSize indicates a non-positive window length.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates a negative overlap or one not smaller than the window.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// Splitter cuts text into overlapping windows.
// A Splitter is immutable and safe for concurrent use.
type Splitter struct {
	size    int
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter) error

// WithChunkSize sets the window length in runes.
func WithChunkSize(size int) Option {
	return func(s *Splitter) error {
		if size <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
		}
		s.size = size
		return nil
	}
}

// WithChunkOverlap sets the overlap between adjacent windows in runes.
func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) error {
		if overlap < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidOverlap, overlap)
		}
		s.overlap = overlap
		return nil
	}
}

// NewSplitter creates a Splitter with the default 750/50 window.
func NewSplitter(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.overlap >= s.size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, s.overlap, s.size)
	}
	return s, nil
}

// ChunkSize returns the window length.
func (s *Splitter) ChunkSize() int {
	return s.size
}

// ChunkOverlap returns the overlap between adjacent windows.
func (s *Splitter) ChunkOverlap() int {
	return s.overlap
}

// SplitText cuts text into windows. Empty text yields no windows and text
// no longer than the window yields exactly one.
func (s *Splitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.size {
		return []string{text}
	}

	step := s.size - s.overlap
	var out []string
	for start := 0; ; start += step {
		end := min(start+s.size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// Split chunks every document independently; chunks never span documents.
// Each chunk carries its document's source and fetch time.
func (s *Splitter) Split(docs []core.Document) []core.Chunk {
	var chunks []core.Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Content) {
			chunks = append(chunks, core.Chunk{
				Text:      text,
				Source:    doc.Source,
				FetchedAt: doc.FetchedAt,
				Index:     i,
			})
		}
	}
	return chunks
}
