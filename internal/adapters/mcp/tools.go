package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

const (
	toolSearch = "search_documents"
	toolAsk    = "ask_corpus"

	defaultSearchTopK = 5
)

type searchResult struct {
	DocumentID int64   `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

type searchOutput struct {
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool(toolSearch,
		mcp.WithDescription("Search the document corpus and return the passages visible to this session"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of passages to return (default 5)")),
	), s.handleSearch)

	s.server.AddTool(mcp.NewTool(toolAsk,
		mcp.WithDescription("Answer a question using only passages from the document corpus, citing them as [Document N]"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages to ground the answer on")),
	), s.handleAsk)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", defaultSearchTopK)

	chunks, err := s.query.Search(ctx, s.principal, query, topK, s.client)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	out := searchOutput{Results: make([]searchResult, 0, len(chunks)), Count: len(chunks)}
	for _, c := range chunks {
		out.Results = append(out.Results, searchResult{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Filename:   c.Filename,
			Score:      c.Score,
			Content:    c.Content,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := s.query.Ask(ctx, s.principal, domain.AskRequest{
		Query: query,
		TopK:  request.GetInt("top_k", 0),
	}, s.client)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(answer)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// Invalid input is worth showing to the assistant; anything else is not.
func toolErrorMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	return "request failed"
}
