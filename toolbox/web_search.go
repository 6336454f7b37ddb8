package toolbox

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/martinemde/taskrouter/agentloop"
)

// WebSearchName is the registered name of the search tool.
const WebSearchName = "web_search"

// DefaultSearchURL is the HTML search endpoint scraped by WebSearch.
const DefaultSearchURL = "https://html.duckduckgo.com/html/"

// SearchParams are the parameters of the web_search tool.
type SearchParams struct {
	Query      string `json:"query" validate:"required,min=2" jsonschema:"description=Search query"`
	MaxResults int    `json:"max_results,omitempty" validate:"gte=0,lte=20" jsonschema:"description=Number of results to return (default 5)"`
}

// SearchResult is one hit of a web search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch scrapes an HTML search results page.
type WebSearch struct {
	endpoint   string
	userAgent  string
	timeout    time.Duration
	maxResults int
}

// NewWebSearch creates a WebSearch against endpoint, which receives the query
// in the q parameter. Empty values select the defaults.
func NewWebSearch(endpoint, userAgent string, timeout time.Duration, maxResults int) *WebSearch {
	if endpoint == "" {
		endpoint = DefaultSearchURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearch{endpoint: endpoint, userAgent: userAgent, timeout: timeout, maxResults: maxResults}
}

func (w *WebSearch) Name() string { return WebSearchName }

func (w *WebSearch) Description() string {
	return "Searches the web and returns the top results with title, URL and snippet. " +
		"Use web_fetch afterwards to read a result page. Plain text input is treated as the query."
}

func (w *WebSearch) Parameters() map[string]any { return schemaFor[SearchParams]() }

func searchParamsFromRaw(raw string) SearchParams {
	return SearchParams{Query: raw}
}

// Validate implements agentloop.Validatable.
func (w *WebSearch) Validate(input agentloop.ActionInput) error {
	_, err := bind(input, searchParamsFromRaw)
	return err
}

func (w *WebSearch) Execute(ctx context.Context, input agentloop.ActionInput) (agentloop.ToolOutcome, error) {
	p, err := bind(input, searchParamsFromRaw)
	if err != nil {
		return failure("%v", err), nil
	}
	limit := w.maxResults
	if p.MaxResults > 0 {
		limit = p.MaxResults
	}

	results, err := w.Search(ctx, p.Query, limit)
	if err != nil {
		return failure("search for %q failed: %v", p.Query, err), nil
	}
	if len(results) == 0 {
		return failure("no results found for %q", p.Query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for %q:\n", len(results), p.Query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
	}
	return agentloop.ToolOutcome{
		Success:  true,
		Output:   sb.String(),
		Metadata: map[string]any{"query": p.Query, "results": len(results)},
	}, nil
}

// Search returns up to limit results for query.
func (w *WebSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	target, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := target.Query()
	q.Set("q", query)
	target.RawQuery = q.Encode()

	c := colly.NewCollector(colly.UserAgent(w.userAgent))
	c.SetRequestTimeout(w.timeout)

	var results []SearchResult
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnHTML(".result", func(e *colly.HTMLElement) {
		if len(results) >= limit {
			return
		}
		title := strings.TrimSpace(e.ChildText(".result__a"))
		href := e.ChildAttr(".result__a", "href")
		if title == "" || href == "" {
			return
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     resultURL(e.Request.AbsoluteURL(href)),
			Snippet: collapseSpace(e.ChildText(".result__snippet")),
		})
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(target.String()); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if visitErr != nil {
		return nil, visitErr
	}
	return results, nil
}

// resultURL unwraps redirect links of the form /l/?uddg=<target>.
func resultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
