package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// noopValidator allows all URLs (httptest servers bind loopback, which the
// real validator blocks).
func noopValidator(_ string) error { return nil }

func TestWebsiteFetch(t *testing.T) {
	// WHAT: Basic HTTP GET returns body and title.
	body := `<html><head><title>  Acme Careers  </title></head><body>jobs</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("no User-Agent sent")
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewWebsite(WebsiteConfig{URLValidator: noopValidator})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(res.Body) != body {
		t.Errorf("body: got %q", res.Body)
	}
	if res.Title != "Acme Careers" {
		t.Errorf("title: got %q", res.Title)
	}
	if res.FetchedAt == 0 {
		t.Error("FetchedAt not set")
	}
}

func TestWebsiteStatusClassification(t *testing.T) {
	// WHAT: HTTP status codes map to failure kinds.
	// WHY: The worker picks retry vs deactivation from the kind.
	tests := []struct {
		status int
		want   Kind
	}{
		{404, KindNotFound},
		{410, KindNotFound},
		{429, KindRateLimited},
		{500, KindUnknown},
		{503, KindUnknown},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		f := NewWebsite(WebsiteConfig{URLValidator: noopValidator})
		_, err := f.Fetch(context.Background(), srv.URL)
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		if got := KindOf(err); got != tt.want {
			t.Errorf("status %d: kind = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestWebsiteTimeout(t *testing.T) {
	// WHAT: A slow server produces KindTimeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	f := NewWebsite(WebsiteConfig{Timeout: 100 * time.Millisecond, URLValidator: noopValidator})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("kind = %v, want KindTimeout", got)
	}
}

func TestWebsiteRedirectLimit(t *testing.T) {
	// WHAT: More than 5 redirects fails the fetch.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := NewWebsite(WebsiteConfig{URLValidator: noopValidator})
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected redirect-loop error")
	}
}

func TestWebsiteBlockedURL(t *testing.T) {
	// WHAT: The validator runs before any request goes out.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	}))
	defer srv.Close()

	f := NewWebsite(WebsiteConfig{}) // default validator blocks loopback
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected SSRF block")
	}
}

func TestWebsiteMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	f := NewWebsite(WebsiteConfig{MaxBytes: 100, URLValidator: noopValidator})
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected oversize error")
	}
}

func TestWebsiteContentType(t *testing.T) {
	// WHAT: Binary responses are a parse failure, not a phantom change.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := NewWebsite(WebsiteConfig{URLValidator: noopValidator})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for PDF response")
	}
	if got := KindOf(err); got != KindParseFailure {
		t.Errorf("kind = %v, want KindParseFailure", got)
	}
}

func TestHTMLTitle(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"simple", `<html><head><title>Hello</title></head></html>`, "Hello"},
		{"no title", `<html><body>text</body></html>`, ""},
		// <title> content is raw text: markup inside it stays verbatim.
		{"comment markup kept verbatim", `<title>a<!-- c -->b</title>`, "a<!-- c -->b"},
		{"empty doc", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlTitle([]byte(tt.in)); got != tt.want {
				t.Errorf("htmlTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	f := NewWebsite(WebsiteConfig{URLValidator: noopValidator})
	r.Register("website", f)

	got, err := r.For("website")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if got != Fetcher(f) {
		t.Error("wrong fetcher returned")
	}
	if _, err := r.For("carrier_pigeon"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
