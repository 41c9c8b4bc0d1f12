package research

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Source is one web page backing a search answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchResult is what the web_search tool hands back to the agent.
type SearchResult struct {
	Query   string   `json:"query"`
	Summary string   `json:"summary"`
	Sources []Source `json:"sources"`
}

// WebSearcher runs a web search.
type WebSearcher interface {
	Search(ctx context.Context, query string) (*SearchResult, error)
}

// GroundedSearcher answers queries with Gemini grounded on Google Search.
type GroundedSearcher struct {
	client *genai.Client
	model  string
}

// NewGroundedSearcher creates a searcher that shares client.
func NewGroundedSearcher(client *genai.Client, model string) *GroundedSearcher {
	return &GroundedSearcher{client: client, model: model}
}

func (s *GroundedSearcher) Search(ctx context.Context, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(query), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("grounded search failed: %w", err)
	}
	return searchResultFromResponse(query, resp), nil
}

func searchResultFromResponse(query string, resp *genai.GenerateContentResponse) *SearchResult {
	result := &SearchResult{Query: query}
	if resp == nil {
		return result
	}

	result.Summary = strings.TrimSpace(resp.Text())
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].GroundingMetadata == nil {
		return result
	}

	seen := make(map[string]bool)
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		result.Sources = append(result.Sources, Source{Title: chunk.Web.Title, URL: chunk.Web.URI})
	}
	return result
}
