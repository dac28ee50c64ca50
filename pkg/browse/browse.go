// Package browse fetches a web page and reduces it to plain text for
// prompt context.
package browse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mhalvorsen/go-parley/internal/httpc"
)

// ErrNotHTML is returned when the page is not text content.
var ErrNotHTML = errors.New("browse: not a text page")

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 512 * 1024

// maxTextChars caps the extracted text handed to the prompt.
const maxTextChars = 4000

// Fetcher retrieves pages as plain text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Client implements Fetcher over plain HTTP.
type Client struct {
	http *http.Client
}

// NewClient creates a page fetcher.
func NewClient() *Client {
	return &Client{http: httpc.NewClient(20 * time.Second)}
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Fetch retrieves the page and strips it to readable text.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("browse: create request: %w", err)
	}
	req.Header.Set("User-Agent", "parley/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("browse: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("browse: status %d for %s", resp.StatusCode, url)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/") && !strings.Contains(ct, "html") {
		return "", ErrNotHTML
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("browse: read body: %w", err)
	}

	return ExtractText(string(body)), nil
}

// ExtractText strips markup and collapses whitespace.
func ExtractText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(text)
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))

	if len(text) > maxTextChars {
		text = text[:maxTextChars]
	}
	return text
}

// Mock implements Fetcher for tests.
type Mock struct {
	Text  string
	Err   error
	Calls int
}

// Fetch returns the scripted text or error.
func (m *Mock) Fetch(ctx context.Context, url string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}

var (
	_ Fetcher = (*Client)(nil)
	_ Fetcher = (*Mock)(nil)
)
