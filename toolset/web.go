package toolset

import (
	"context"
	"fmt"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/tool"
)

// SearchResult is one external search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider queries an external search engine.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchFunc adapts a function to SearchProvider.
type SearchFunc func(ctx context.Context, query string, limit int) ([]SearchResult, error)

// Search calls f.
func (f SearchFunc) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return f(ctx, query, limit)
}

// WebSearchArgs are the arguments of web_search.
type WebSearchArgs struct {
	Query string `json:"query" description:"Search query"`
	Limit int    `json:"limit" default:"5" description:"Maximum number of results"`
}

func newWebSearch(p SearchProvider) *tool.Tool {
	return tool.New(WebSearch,
		"Search the web for documentation, articles and discussions about a topic.",
		func(ctx context.Context, in WebSearchArgs) (any, error) {
			results, err := p.Search(ctx, in.Query, in.Limit)
			if err != nil {
				return nil, fmt.Errorf("web search: %w", err)
			}
			if in.Limit > 0 && len(results) > in.Limit {
				results = results[:in.Limit]
			}

			findings := make([]core.Finding, 0, len(results))
			for _, r := range results {
				findings = append(findings, core.Finding{Artifact: r.URL, Kind: "web", Detail: r.Title})
			}

			return tool.Output{
				Payload:  map[string]any{"results": results, "count": len(results)},
				Findings: findings,
			}, nil
		})
}
