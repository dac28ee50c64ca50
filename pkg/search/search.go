// Package search provides web search for turn context gathering, plus
// the recency-aware curation that ranks raw results before they are
// injected into the model prompt.
package search

import (
	"context"
	"errors"
	"time"
)

// ErrNoAPIKey is returned when the API key is missing.
var ErrNoAPIKey = errors.New("search: API key required")

// ErrNoEngineID is returned when the custom search engine ID is missing.
var ErrNoEngineID = errors.New("search: engine ID required")

// Result is one raw search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string

	// Published is the article date when known; zero means unknown.
	Published time.Time
}

// Searcher performs a web search.
type Searcher interface {
	// Search returns up to max raw results for the query.
	Search(ctx context.Context, query string, max int) ([]Result, error)
}
