package chunking

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", "。", "! ", "? ", ", ", " ", ""}

// RecursiveSplitter splits on the coarsest separator present in the text and
// recurses with finer separators into pieces that are still too long.
// Lengths are counted in runes.
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveSplitter(chunkSize, overlap int, separators []string) (*RecursiveSplitter, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	if len(separators) == 0 {
		separators = defaultSeparators
	}
	return &RecursiveSplitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: separators,
	}, nil
}

func (s *RecursiveSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	return s.split(text, s.separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, candidate := range separators {
		if candidate == "" {
			separator = ""
			break
		}
		if strings.Contains(text, candidate) {
			separator = candidate
			finer = separators[i+1:]
			break
		}
	}

	out := make([]string, 0)
	pending := make([]string, 0)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = pending[:0]
		}
		if len(finer) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				out = append(out, trimmed)
			}
			continue
		}
		out = append(out, s.split(piece, finer)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge packs consecutive pieces into chunks of at most chunkSize runes and
// seeds each new chunk with a tail of at most overlap runes from the previous one.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	out := make([]string, 0)
	window := make([]string, 0)
	total := 0
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				out = append(out, chunk)
			}
			for len(window) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

// splitKeepingSeparator splits text so that each separator stays attached to
// the start of the piece that follows it. An empty separator splits into runes.
func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = separator + part
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
