package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenSplitter windows text by approximate tokens. Chunks are slices of the
// original text, so whitespace inside a chunk is preserved.
type TokenSplitter struct {
	chunkSize int
	overlap   int
}

func NewTokenSplitter(chunkSize, overlap int) (*TokenSplitter, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &TokenSplitter{chunkSize: chunkSize, overlap: overlap}, nil
}

func (s *TokenSplitter) Split(text string) []string {
	spans := tokenSpans(text)
	if len(spans) == 0 {
		return []string{}
	}
	step := s.chunkSize - s.overlap
	out := make([]string, 0, len(spans)/step+1)
	for start := 0; start < len(spans); start += step {
		end := start + s.chunkSize
		if end > len(spans) {
			end = len(spans)
		}
		chunk := strings.TrimSpace(text[spans[start].start:spans[end-1].end])
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(spans) {
			break
		}
	}
	return out
}

// EstimateTokens approximates the token count of text: one per
// whitespace-delimited word, one per CJK character.
func EstimateTokens(text string) int {
	return len(tokenSpans(text))
}

type span struct {
	start int
	end   int
}

func tokenSpans(text string) []span {
	spans := make([]span, 0)
	wordStart := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if wordStart >= 0 {
				spans = append(spans, span{start: wordStart, end: i})
				wordStart = -1
			}
		case isCJK(r):
			if wordStart >= 0 {
				spans = append(spans, span{start: wordStart, end: i})
				wordStart = -1
			}
			spans = append(spans, span{start: i, end: i + utf8.RuneLen(r)})
		default:
			if wordStart < 0 {
				wordStart = i
			}
		}
	}
	if wordStart >= 0 {
		spans = append(spans, span{start: wordStart, end: len(text)})
	}
	return spans
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
