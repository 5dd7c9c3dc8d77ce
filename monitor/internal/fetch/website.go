package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/vigil/safeurl"
)

// WebsiteConfig configures the plain-HTTP fetcher.
type WebsiteConfig struct {
	Timeout  time.Duration // per-request deadline. Default: 30s.
	MaxBytes int64         // max response body size. Default: safeurl.MaxBody.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch and on every redirect hop
	// (SSRF prevention). Default: safeurl.Validate.
	URLValidator func(string) error
}

func (c *WebsiteConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = safeurl.MaxBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "vigil-monitor/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = safeurl.Validate
	}
}

// Website fetches public pages over plain HTTP.
type Website struct {
	client *http.Client
	config WebsiteConfig
}

// NewWebsite creates a website fetcher with SSRF protection on redirects.
func NewWebsite(cfg WebsiteConfig) *Website {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Website{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL and classifies failures by HTTP status.
func (w *Website) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := w.config.URLValidator(url); err != nil {
		return nil, errOf(KindUnknown, url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errOf(KindUnknown, url, err)
	}
	req.Header.Set("User-Agent", w.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, errOf(KindTimeout, url, err)
		}
		return nil, errOf(KindUnknown, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errOf(KindNotFound, url, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errOf(KindRateLimited, url, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 400:
		return nil, errOf(KindUnknown, url, fmt.Errorf("http %d", resp.StatusCode))
	}

	if ct := resp.Header.Get("Content-Type"); !textContentType(ct) {
		return nil, errOf(KindParseFailure, url, fmt.Errorf("unsupported content type %q", ct))
	}

	body, err := safeurl.ReadAll(resp.Body, w.config.MaxBytes)
	if err != nil {
		return nil, errOf(KindUnknown, url, err)
	}

	return &Result{
		Body:      body,
		Title:     htmlTitle(body),
		FetchedAt: time.Now().UnixMilli(),
	}, nil
}

// textContentType accepts HTML, plain text, and XML variants. An empty
// header passes: plenty of small sites never set one.
func textContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	for _, ok := range []string{"text/html", "application/xhtml", "text/plain", "text/xml", "application/xml"} {
		if strings.HasPrefix(ct, ok) {
			return true
		}
	}
	return false
}

// htmlTitle extracts the <title> text from an HTML document. Returns ""
// when the document has none or does not parse.
func htmlTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			title = strings.TrimSpace(sb.String())
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
