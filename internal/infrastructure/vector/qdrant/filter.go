package qdrant

import "github.com/kirillkom/corpus-rag/internal/core/domain"

// buildFilter renders f as a Qdrant filter: every AnyOf clause becomes a
// "should" group inside "must", so clauses are ANDed and values ORed.
func buildFilter(f domain.AccessFilter) map[string]any {
	if f.IsZero() {
		return nil
	}
	must := make([]map[string]any, 0, len(f.Must))
	for _, clause := range f.Must {
		should := make([]map[string]any, 0, len(clause.Values))
		for _, v := range clause.Values {
			should = append(should, map[string]any{
				"key":   clause.Field,
				"match": map[string]any{"value": v},
			})
		}
		must = append(must, map[string]any{"should": should})
	}
	return map[string]any{"must": must}
}
