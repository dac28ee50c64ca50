package search

import (
	"context"
	"sync"
)

// Mock implements Searcher for tests with scripted results.
type Mock struct {
	mu sync.Mutex

	// Results are returned on success.
	Results []Result

	// Err, when set, fails every call.
	Err error

	// Queries records every search query.
	Queries []string
}

// Search returns the scripted results or error.
func (m *Mock) Search(ctx context.Context, query string, max int) ([]Result, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	out := append([]Result(nil), m.Results...)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// CallCount returns how many searches were made.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// Verify Mock implements Searcher at compile time.
var _ Searcher = (*Mock)(nil)
