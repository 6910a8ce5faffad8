// Package ingest turns raw document text into indexed, extracted workspace
// content: split into chunks, embed into the vector index, and populate the
// knowledge graph.
package ingest

import (
	"strings"
	"unicode/utf8"
)

// Splitter cuts document text into chunk-sized pieces.
type Splitter interface {
	Split(text string) []string
}

// SimpleSplitter splits text into fixed-size windows, preferring to break at
// the separator and carrying ChunkOverlap characters between neighbors.
type SimpleSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

// NewSimpleSplitter creates a SimpleSplitter breaking at blank lines.
func NewSimpleSplitter(chunkSize, chunkOverlap int) *SimpleSplitter {
	return &SimpleSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separator:    "\n\n",
	}
}

// Split cuts text into chunks of at most ChunkSize characters.
func (s *SimpleSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.ChunkSize {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + s.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Never cut a multi-byte rune in half.
			end = alignRuneStart(text, end)
			if end <= start {
				_, size := utf8.DecodeRuneInString(text[start:])
				end = start + size
			}
		}

		// Prefer to break at the last separator inside the window.
		if end < len(text) && s.Separator != "" {
			if lastSep := strings.LastIndex(text[start:end], s.Separator); lastSep > 0 {
				end = start + lastSep + len(s.Separator)
			}
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			chunks = append(chunks, piece)
		}

		nextStart := end - s.ChunkOverlap
		if nextStart <= start {
			// A small chunk would make the overlap walk backwards; move on.
			nextStart = end
		} else if nextStart < len(text) {
			nextStart = alignRuneStart(text, nextStart)
			if nextStart <= start {
				nextStart = end
			}
		}
		start = nextStart
	}
	return chunks
}

// RecursiveSplitter splits text along a separator hierarchy, trying coarse
// separators first and falling back to finer ones for pieces that are still
// too large. Pieces are re-merged greedily up to the chunk size so related
// text stays together.
type RecursiveSplitter struct {
	separators []string
	chunkSize  int
	length     func(string) int
}

// RecursiveOption configures a RecursiveSplitter.
type RecursiveOption func(*RecursiveSplitter)

// WithChunkSize sets the maximum chunk length.
func WithChunkSize(size int) RecursiveOption {
	return func(s *RecursiveSplitter) { s.chunkSize = size }
}

// WithSeparators sets the separator hierarchy, coarsest first.
func WithSeparators(separators []string) RecursiveOption {
	return func(s *RecursiveSplitter) { s.separators = separators }
}

// WithLengthFunc sets a custom length measure, e.g. a token counter.
func WithLengthFunc(fn func(string) int) RecursiveOption {
	return func(s *RecursiveSplitter) { s.length = fn }
}

// NewRecursiveSplitter creates a RecursiveSplitter with paragraph, line, word
// and character fallbacks.
func NewRecursiveSplitter(opts ...RecursiveOption) *RecursiveSplitter {
	s := &RecursiveSplitter{
		separators: []string{"\n\n", "\n", " ", ""},
		chunkSize:  1000,
		length:     func(text string) int { return len(text) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split cuts text into chunks of at most the configured size.
func (s *RecursiveSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	if s.length(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitByWidth(text)
	}

	separator := separators[0]
	rest := separators[1:]

	var pieces []string
	if separator == "" {
		pieces = s.splitByWidth(text)
	} else {
		pieces = strings.Split(text, separator)
	}

	var fitted []string
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		if s.length(piece) <= s.chunkSize {
			fitted = append(fitted, piece)
		} else {
			fitted = append(fitted, s.split(piece, rest)...)
		}
	}
	return s.merge(fitted, separator)
}

// merge re-joins consecutive pieces while they fit the chunk size.
func (s *RecursiveSplitter) merge(pieces []string, separator string) []string {
	joiner := separator
	if joiner == "" {
		joiner = " "
	}

	var merged []string
	var current string
	for _, piece := range pieces {
		if current == "" {
			current = piece
			continue
		}
		proposed := current + joiner + piece
		if s.length(proposed) <= s.chunkSize {
			current = proposed
		} else {
			merged = append(merged, current)
			current = piece
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}

func (s *RecursiveSplitter) splitByWidth(text string) []string {
	var pieces []string
	for start := 0; start < len(text); {
		end := start + s.chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Never cut a multi-byte rune in half.
			end = alignRuneStart(text, end)
			if end <= start {
				_, size := utf8.DecodeRuneInString(text[start:])
				end = start + size
			}
		}
		pieces = append(pieces, text[start:end])
		start = end
	}
	return pieces
}

// alignRuneStart steps i back to the nearest rune boundary in text.
func alignRuneStart(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
