package search

import (
	"testing"
	"time"
)

func TestWantsRecency(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"latest news today", true},
		{"breaking developments", true},
		{"go concurrency patterns", false},
		{"history of rome", false},
		{"what happened this week", true},
	}
	for _, tt := range tests {
		if got := WantsRecency(tt.query); got != tt.want {
			t.Errorf("WantsRecency(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestCurateFreshBeatsStale(t *testing.T) {
	now := time.Now()
	results := []Result{
		{URL: "a", Title: "A", Published: now},
		{URL: "b", Title: "B", Published: now.Add(-200 * 24 * time.Hour)},
	}

	out := Curate("latest news today", results, now)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].URL != "a" {
		t.Errorf("fresh result must rank first, got %s", out[0].URL)
	}

	// No duplicates even though "a" passes both the score ranking and
	// the fresh partition.
	seen := map[string]int{}
	for _, r := range out {
		seen[r.URL]++
	}
	if seen["a"] != 1 {
		t.Errorf("result a appeared %d times", seen["a"])
	}
}

func TestCurateTopFiveByScore(t *testing.T) {
	now := time.Now()
	var results []Result
	for i := 0; i < 8; i++ {
		results = append(results, Result{
			URL:       string(rune('a' + i)),
			Title:     "T",
			Published: now.Add(-time.Duration(i*10) * 24 * time.Hour),
		})
	}

	out := Curate("go concurrency patterns", results, now)
	if len(out) != 5 {
		t.Fatalf("expected 5 results, got %d", len(out))
	}
	// Newer dates score higher, so order is preserved.
	for i, r := range out {
		if want := string(rune('a' + i)); r.URL != want {
			t.Errorf("position %d: expected %s, got %s", i, want, r.URL)
		}
	}
}

func TestCurateStableTies(t *testing.T) {
	results := []Result{
		{URL: "first", Title: "T"},
		{URL: "second", Title: "T"},
		{URL: "third", Title: "T"},
	}

	out := Curate("plain query", results, time.Now())
	if out[0].URL != "first" || out[1].URL != "second" || out[2].URL != "third" {
		t.Errorf("tie order not stable: %v", out)
	}
}

func TestCurateUnknownDatesAreStale(t *testing.T) {
	now := time.Now()
	results := []Result{
		{URL: "undated", Title: "U"},
		{URL: "dated", Title: "D", Published: now.Add(-24 * time.Hour)},
	}

	out := Curate("latest update", results, now)
	if out[0].URL != "dated" {
		t.Errorf("dated fresh result must outrank undated, got %s", out[0].URL)
	}
}

func TestCurateEmptyFreshFallsBack(t *testing.T) {
	now := time.Now()
	results := []Result{
		{URL: "a", Title: "A", Published: now.Add(-300 * 24 * time.Hour)},
		{URL: "b", Title: "B", Published: now.Add(-200 * 24 * time.Hour)},
	}

	out := Curate("latest news", results, now)
	if len(out) != 2 {
		t.Fatalf("expected fallback to plain ranking, got %d results", len(out))
	}
	// Both are outside the window and tie on score, so original order holds.
	if out[0].URL != "a" {
		t.Errorf("tie should keep submission order, got %s first", out[0].URL)
	}
}

func TestCurateEmptyInput(t *testing.T) {
	if out := Curate("anything", nil, time.Now()); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}
