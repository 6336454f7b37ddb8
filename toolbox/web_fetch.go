package toolbox

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/martinemde/taskrouter/agentloop"
)

// WebFetchName is the registered name of the page fetching tool.
const WebFetchName = "web_fetch"

// DefaultUserAgent identifies the web tools to remote servers.
const DefaultUserAgent = "taskrouter/1.0 (+https://github.com/martinemde/taskrouter)"

// maxFetchBytes caps how much of a response body is read.
const maxFetchBytes = 2 << 20

// FetchParams are the parameters of the web_fetch tool.
type FetchParams struct {
	URL string `json:"url" validate:"required,http_url" jsonschema:"description=Absolute http or https URL"`
}

// WebFetch downloads a page and reduces it to readable text.
type WebFetch struct {
	client    *http.Client
	userAgent string
}

// NewWebFetch creates a WebFetch. A nil client gets one with timeout.
func NewWebFetch(client *http.Client, userAgent string, timeout time.Duration) *WebFetch {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &WebFetch{client: client, userAgent: userAgent}
}

func (w *WebFetch) Name() string { return WebFetchName }

func (w *WebFetch) Description() string {
	return "Fetches a web page and returns its title and visible text. Plain text input is treated as the URL."
}

func (w *WebFetch) Parameters() map[string]any { return schemaFor[FetchParams]() }

func fetchParamsFromRaw(raw string) FetchParams {
	return FetchParams{URL: raw}
}

// Validate implements agentloop.Validatable.
func (w *WebFetch) Validate(input agentloop.ActionInput) error {
	_, err := bind(input, fetchParamsFromRaw)
	return err
}

func (w *WebFetch) Execute(ctx context.Context, input agentloop.ActionInput) (agentloop.ToolOutcome, error) {
	p, err := bind(input, fetchParamsFromRaw)
	if err != nil {
		return failure("%v", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return failure("invalid request: %v", err), nil
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		return failure("fetch %s: %v", p.URL, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure("fetch %s: status %d %s", p.URL, resp.StatusCode, http.StatusText(resp.StatusCode)), nil
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var title, text string
	if mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		title, text, err = pageText(body)
		if err != nil {
			return failure("parse %s: %v", p.URL, err), nil
		}
	} else {
		raw, err := io.ReadAll(body)
		if err != nil {
			return failure("read %s: %v", p.URL, err), nil
		}
		text = strings.TrimSpace(string(raw))
	}
	if text == "" {
		return failure("page %s has no readable text", p.URL), nil
	}

	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", title)
	}
	fmt.Fprintf(&sb, "URL: %s\n\n%s", p.URL, text)
	return agentloop.ToolOutcome{
		Success:  true,
		Output:   sb.String(),
		Metadata: map[string]any{"url": p.URL, "status": resp.StatusCode, "content_type": mediaType},
	}, nil
}

// pageText extracts the title and the visible text of an HTML document, one
// trimmed line per block.
func pageText(r io.Reader) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}
	title := collapseSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, template, svg, iframe, nav, footer, header").Remove()
	// Separate block elements so their text does not run together.
	doc.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, tr, pre, blockquote, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var lines []string
	for _, line := range strings.Split(root.Text(), "\n") {
		if line = collapseSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return title, strings.Join(lines, "\n"), nil
}
