package r2r

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RetrievalService runs searches and RAG completions.
type RetrievalService struct {
	c *Client
}

// Search retrieves chunks relevant to the query, capped at req.Limit.
// Failures wrap ErrSearch.
func (s *RetrievalService) Search(ctx context.Context, req SearchRequest) (res SearchResult, err error) {
	start := time.Now()
	defer func() { s.c.obs.observe("retrieval.search", start, err) }()

	in := searchRequestWire{
		Query: req.Query,
		SearchSettings: searchSettingsWire{
			Limit:           req.Limit,
			UseHybridSearch: req.UseHybridSearch,
		},
	}

	var env envelope[searchWire]
	if err = s.c.doJSON(ctx, http.MethodPost, "/v3/retrieval/search", nil, in, &env); err != nil {
		return SearchResult{}, fmt.Errorf("search: %w: %w", ErrSearch, err)
	}
	return SearchResult{Results: env.Results.ChunkSearchResults}, nil
}

// RAG answers the query with a completion conditioned on retrieved chunks.
// Failures wrap ErrCompletion.
func (s *RetrievalService) RAG(ctx context.Context, req RAGRequest) (res RAGResult, err error) {
	start := time.Now()
	defer func() { s.c.obs.observe("retrieval.rag", start, err) }()

	in := searchRequestWire{
		Query: req.Query,
		SearchSettings: searchSettingsWire{
			Limit:           req.Limit,
			UseHybridSearch: req.UseHybridSearch,
		},
	}

	var env envelope[ragWire]
	if err = s.c.doJSON(ctx, http.MethodPost, "/v3/retrieval/rag", nil, in, &env); err != nil {
		return RAGResult{}, fmt.Errorf("rag: %w: %w", ErrCompletion, err)
	}
	return RAGResult{
		Completion: env.Results.answer(),
		Sources:    env.Results.SearchResults.ChunkSearchResults,
	}, nil
}
