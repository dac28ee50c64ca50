package search

import (
	"sort"
	"strings"
	"time"
)

const (
	// recencyWindow is how long a result counts as fresh. The recency
	// score decays linearly from 1 to 0 across it.
	recencyWindow = 120 * 24 * time.Hour

	// unknownDateScore is the flat recency score for undated results.
	unknownDateScore = 0.3

	// curatedMax is how many results survive curation.
	curatedMax = 5
)

// recencyKeywords signal that the user explicitly wants fresh results.
var recencyKeywords = []string{
	"latest", "today", "breaking", "current", "now",
	"this week", "recent", "news",
}

// WantsRecency reports whether the query carries an explicit freshness
// signal.
func WantsRecency(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range recencyKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Curate ranks raw results for prompt injection. Each result scores
// 1 + recency, where recency decays linearly over the window and
// unknown dates take a flat default. When the query asks for fresh
// results, in-window results gain +1 and out-of-window results lose
// 0.5, fresh results are moved ahead of stale ones, and duplicates by
// (url, title) are dropped. At most five results survive.
func Curate(query string, results []Result, now time.Time) []Result {
	if len(results) == 0 {
		return nil
	}

	wantsFresh := WantsRecency(query)

	items := make([]scored, 0, len(results))
	for _, r := range results {
		rec, fresh := recencyScore(r.Published, now)
		score := 1 + rec
		if wantsFresh {
			if fresh {
				score += 1
			} else {
				score -= 0.5
			}
		}
		items = append(items, scored{Result: r, score: score, fresh: fresh})
	}

	// Stable keeps original order on ties.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	if !wantsFresh {
		return take(items, curatedMax)
	}

	// Fresh-first partition, then de-duplicate keeping first occurrence.
	var fresh, stale []scored
	for _, it := range items {
		if it.fresh {
			fresh = append(fresh, it)
		} else {
			stale = append(stale, it)
		}
	}
	if len(fresh) == 0 {
		return take(items, curatedMax)
	}

	combined := append(fresh, stale...)
	seen := make(map[[2]string]bool, len(combined))
	deduped := combined[:0]
	for _, it := range combined {
		key := [2]string{it.URL, it.Title}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, it)
	}

	return take(deduped, curatedMax)
}

// recencyScore returns the linear decay score and whether the date
// falls inside the window.
func recencyScore(published time.Time, now time.Time) (float64, bool) {
	if published.IsZero() {
		return unknownDateScore, false
	}

	age := now.Sub(published)
	if age < 0 {
		age = 0
	}
	if age >= recencyWindow {
		return 0, false
	}
	return 1 - float64(age)/float64(recencyWindow), true
}

type scored struct {
	Result
	score float64
	fresh bool
}

func take(items []scored, n int) []Result {
	if len(items) > n {
		items = items[:n]
	}
	out := make([]Result, 0, len(items))
	for _, it := range items {
		out = append(out, it.Result)
	}
	return out
}
