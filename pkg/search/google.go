package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Google implements Searcher over the Programmable Search JSON API.
type Google struct {
	svc      *customsearch.Service
	engineID string
	logger   *slog.Logger
}

// NewGoogle creates a searcher with an API key and a custom search
// engine ID.
func NewGoogle(ctx context.Context, apiKey, engineID string) (*Google, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if engineID == "" {
		return nil, ErrNoEngineID
	}

	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("search: create service: %w", err)
	}

	return &Google{
		svc:      svc,
		engineID: engineID,
		logger:   slog.Default().With("component", "search.google"),
	}, nil
}

// Search returns up to max results.
func (g *Google) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if max <= 0 || max > 10 {
		max = 10
	}

	start := time.Now()
	resp, err := g.svc.Cse.List().
		Cx(g.engineID).
		Q(query).
		Num(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{
			Title:     item.Title,
			URL:       item.Link,
			Snippet:   item.Snippet,
			Published: publishedDate(item),
		})
	}

	g.logger.Debug("search complete",
		"query", query,
		"results", len(results),
		"latency_ms", time.Since(start).Milliseconds())
	return results, nil
}

// publishedDate digs the article date out of pagemap metatags when the
// page exposes one.
func publishedDate(item *customsearch.Result) time.Time {
	if len(item.Pagemap) == 0 {
		return time.Time{}
	}

	var pagemap struct {
		Metatags []map[string]string `json:"metatags"`
	}
	if err := json.Unmarshal(item.Pagemap, &pagemap); err != nil {
		return time.Time{}
	}

	for _, tags := range pagemap.Metatags {
		for _, key := range []string{"article:published_time", "og:published_time", "date"} {
			if v, ok := tags[key]; ok {
				for _, layout := range []string{time.RFC3339, "2006-01-02"} {
					if t, err := time.Parse(layout, v); err == nil {
						return t
					}
				}
			}
		}
	}
	return time.Time{}
}

// Verify Google implements Searcher at compile time.
var _ Searcher = (*Google)(nil)
