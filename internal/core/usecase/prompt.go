package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// NoRelevantDocumentsAnswer is returned without generation when retrieval
// finds nothing the caller may see.
const NoRelevantDocumentsAnswer = "I couldn't find any relevant documents to answer your question. This might be due to access restrictions or the information not being available in the system."

const insufficientInformation = "I don't have enough information to answer that question."

func buildAnswerPrompt(question string, chunks []domain.RetrievedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		if idx > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(fmt.Sprintf("[Document %d: %s]\n%s", idx+1, chunk.Filename, chunk.Content))
	}

	return fmt.Sprintf(`You are a helpful assistant. Answer the user's question based ONLY on the provided documents. If the answer cannot be found in the documents, say "%s"

Context Documents:
%s

User Question: %s

Answer:`, insufficientInformation, contextBuilder.String(), question)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
