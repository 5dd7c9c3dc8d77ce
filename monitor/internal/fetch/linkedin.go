package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Navigator renders a URL in an authenticated browser session. Implemented
// by *Session; stubbed in tests.
type Navigator interface {
	Navigate(ctx context.Context, url string) (dom []byte, landedURL, title string, err error)
}

// LinkedIn fetches profile and company pages through a logged-in browser
// session. Auth redirects and tombstone pages are classified so the worker
// can pause the target instead of burning retries.
type LinkedIn struct {
	nav Navigator
}

// NewLinkedIn creates a LinkedIn fetcher on top of a browser session.
func NewLinkedIn(nav Navigator) *LinkedIn {
	return &LinkedIn{nav: nav}
}

// authwall paths LinkedIn redirects to when the session cookie is missing,
// expired, or flagged.
var authPaths = []string{"/authwall", "/login", "/uas/login", "/checkpoint"}

// notFoundMarkers appear in the rendered DOM of deleted or renamed pages,
// which LinkedIn serves with HTTP 200.
var notFoundMarkers = [][]byte{
	[]byte("This page doesn’t exist"),
	[]byte("This page doesn't exist"),
	[]byte("Page not found"),
	[]byte("profile was not found"),
}

// Fetch renders the page and returns its DOM.
func (l *LinkedIn) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	if err := validateLinkedInURL(pageURL); err != nil {
		return nil, errOf(KindUnknown, pageURL, err)
	}

	dom, landed, title, err := l.nav.Navigate(ctx, pageURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errOf(KindTimeout, pageURL, err)
		}
		return nil, errOf(KindUnknown, pageURL, err)
	}

	if isAuthRedirect(landed) {
		return nil, errOf(KindAuthExpired, pageURL, fmt.Errorf("redirected to %s", landed))
	}
	for _, m := range notFoundMarkers {
		if bytes.Contains(dom, m) {
			return nil, errOf(KindNotFound, pageURL, fmt.Errorf("tombstone page"))
		}
	}
	if len(bytes.TrimSpace(dom)) == 0 {
		return nil, errOf(KindParseFailure, pageURL, fmt.Errorf("empty DOM"))
	}

	return &Result{
		Body:      dom,
		Title:     title,
		FetchedAt: time.Now().UnixMilli(),
	}, nil
}

func validateLinkedInURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return fmt.Errorf("not a linkedin.com URL: %s", host)
	}
	return nil
}

func isAuthRedirect(landedURL string) bool {
	u, err := url.Parse(landedURL)
	if err != nil {
		return false
	}
	for _, p := range authPaths {
		if strings.HasPrefix(u.Path, p) {
			return true
		}
	}
	return false
}
