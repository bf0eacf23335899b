package tooling

import (
	"context"
	"encoding/json"
	"fmt"

	"codeloft/internal/metrics"
	"codeloft/internal/scrape"
)

// ScrapeURLsTool fetches external pages so the agent can consult
// documentation the user links to.
type ScrapeURLsTool struct {
	scraper scrape.Scraper
}

func (t *ScrapeURLsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "scrapeUrls",
			Description: "Scrape content from URLs to get documentation or reference materials. Use this when the user provides URLs or references external documentation. Returns markdown from the scraped pages.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"urls": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "The URLs to fetch and scrape content from",
					},
				},
				"required": []string{"urls"},
			},
		},
	}
}

func (t *ScrapeURLsTool) Call(ctx context.Context, args map[string]any) (string, error) {
	urls, err := stringSliceArg(args, "urls")
	if err != nil {
		return "Error:Provide at least one URL to scrape", nil
	}
	type entry struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	}
	results := make([]entry, 0, len(urls))
	for _, url := range urls {
		content, err := t.scraper.Scrape(ctx, url)
		if err != nil {
			metrics.ScrapeFailures.Inc()
			// One bad URL must not sink the batch; the agent sees a
			// placeholder for it instead.
			results = append(results, entry{URL: url, Content: "Failed to scrape Url"})
			continue
		}
		results = append(results, entry{URL: url, Content: content})
	}
	if len(results) == 0 {
		return "Error:no content provided from the scraped urls", nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	return string(data), nil
}
