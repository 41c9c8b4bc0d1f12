package research

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

const (
	webSearchToolName = "web_search"
	fetchPageToolName = "fetch_page"
)

// WebSearchInput is the argument schema of the web_search tool.
type WebSearchInput struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"The search query to run"`
}

// FetchPageInput is the argument schema of the fetch_page tool.
type FetchPageInput struct {
	URL string `json:"url" jsonschema:"required" jsonschema_description:"Absolute http or https URL of a page returned by web_search"`
}

// NewTools wraps the searcher and fetcher as agent tools. Either may be nil.
func NewTools(searcher WebSearcher, fetcher PageFetcher) ([]tool.BaseTool, error) {
	var tools []tool.BaseTool

	if searcher != nil {
		search := func(ctx context.Context, in *WebSearchInput) (*SearchResult, error) {
			if in == nil || in.Query == "" {
				return nil, fmt.Errorf("query is required")
			}
			return searcher.Search(ctx, in.Query)
		}
		t, err := utils.InferTool(webSearchToolName,
			"Search Google for recent, relevant information. Returns a summary and the source links.", search)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s tool: %w", webSearchToolName, err)
		}
		tools = append(tools, t)
	}

	if fetcher != nil {
		fetch := func(ctx context.Context, in *FetchPageInput) (*PageContent, error) {
			if in == nil || in.URL == "" {
				return nil, fmt.Errorf("url is required")
			}
			return fetcher.Fetch(ctx, in.URL)
		}
		t, err := utils.InferTool(fetchPageToolName,
			"Download a web page and return its readable text, to verify details of a search result.", fetch)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s tool: %w", fetchPageToolName, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}
