package chunking

import "strings"

var hybridSeparators = []string{"\n\n\n", "\n\n", "\n", ". ", "。", "！", "？", "! ", "? ", "; ", ", ", " ", ""}

// HybridSplitter runs the recursive splitter with sentence-aware separators and
// then folds undersized fragments into their neighbours.
type HybridSplitter struct {
	recursive *RecursiveSplitter
	minSize   int
}

func NewHybridSplitter(chunkSize, overlap int) (*HybridSplitter, error) {
	recursive, err := NewRecursiveSplitter(chunkSize, overlap, hybridSeparators)
	if err != nil {
		return nil, err
	}
	return &HybridSplitter{recursive: recursive, minSize: chunkSize / 4}, nil
}

func (s *HybridSplitter) Split(text string) []string {
	return foldSmall(s.recursive.Split(text), s.minSize)
}

// foldSmall appends every fragment shorter than minSize to the pending
// buffer, and keeps absorbing fragments while the buffer itself is still
// under minSize. Only a whole input shorter than minSize yields a small chunk.
func foldSmall(fragments []string, minSize int) []string {
	out := make([]string, 0, len(fragments))
	buffer := ""
	for _, fragment := range fragments {
		if buffer != "" && (runeLen(fragment) < minSize || runeLen(buffer) < minSize) {
			buffer = strings.TrimSpace(buffer + " " + fragment)
			continue
		}
		if buffer != "" {
			out = append(out, buffer)
		}
		buffer = fragment
	}
	if buffer != "" {
		out = append(out, buffer)
	}
	return out
}
