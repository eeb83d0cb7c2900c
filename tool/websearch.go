package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultSearchEndpoint = "https://html.duckduckgo.com/html/"
	defaultSearchResults  = 5
	maxSearchResults      = 30
	searchUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// WebSearchOptions configures the web search tool.
type WebSearchOptions struct {
	// Endpoint is the DuckDuckGo HTML search URL. Overridable for tests.
	Endpoint string
	// HTTPClient performs the search request.
	HTTPClient *http.Client
	// Timeout bounds a single search request.
	Timeout time.Duration
}

// WebSearchTool searches the web via the DuckDuckGo HTML interface (no API
// key required) and returns a compact title/URL listing for the model.
type WebSearchTool struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// searchResult is one parsed search hit.
type searchResult struct {
	Title string
	URL   string
}

// NewWebSearchTool constructs the web search tool with optional overrides.
func NewWebSearchTool(optFns ...func(o *WebSearchOptions)) *WebSearchTool {
	opts := WebSearchOptions{
		Endpoint:   defaultSearchEndpoint,
		HTTPClient: http.DefaultClient,
		Timeout:    30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WebSearchTool{endpoint: opts.Endpoint, client: opts.HTTPClient, timeout: opts.Timeout}
}

// Name implements the Tool interface.
func (t *WebSearchTool) Name() string { return "web_search" }

// Description implements the Tool interface.
func (t *WebSearchTool) Description() string {
	return "Search the web using DuckDuckGo and return summarized results"
}

// Parameters implements the Tool interface.
func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 5)",
			},
		},
		"required": []string{"query"},
	}
}

// Invoke implements the Tool interface.
func (t *WebSearchTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", NewToolError(t.Name(), "query must not be empty", "VALIDATION_ERROR")
	}

	maxResults := defaultSearchResults
	if raw, ok := toFloat(args["max_results"]); ok && raw > 0 {
		maxResults = int(raw)
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	results, err := t.search(ctx, query, maxResults)
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}
	if len(results) == 0 {
		return "Sorry, I couldn't find any results related to that topic.", nil
	}

	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s: %s\n", r.Title, r.URL)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// search performs the HTTP request against the DuckDuckGo HTML endpoint.
func (t *WebSearchTool) search(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	searchURL := fmt.Sprintf("%s?q=%s", t.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return parseSearchResults(string(body), maxResults)
}

// parseSearchResults extracts results from the DuckDuckGo HTML page, which
// marks each hit with class="result results_links ..." and the link itself
// with class="result__a".
func parseSearchResults(htmlContent string, maxResults int) ([]searchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var results []searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && strings.Contains(attrValue(n, "class"), "result__a") {
			r := searchResult{Title: textContent(n), URL: cleanResultURL(attrValue(n, "href"))}
			if r.Title != "" && r.URL != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// cleanResultURL unwraps DuckDuckGo's redirect links.
func cleanResultURL(href string) string {
	const redirectPrefix = "//duckduckgo.com/l/?uddg="
	if !strings.HasPrefix(href, redirectPrefix) {
		return href
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(href, redirectPrefix))
	if err != nil {
		return href
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}

// attrValue returns the value of a node attribute, or "".
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textContent concatenates all text beneath a node.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
