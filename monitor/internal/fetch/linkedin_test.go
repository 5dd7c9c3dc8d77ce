package fetch

import (
	"context"
	"errors"
	"testing"
)

// stubNav replays a canned navigation result.
type stubNav struct {
	dom    []byte
	landed string
	title  string
	err    error
}

func (s *stubNav) Navigate(_ context.Context, _ string) ([]byte, string, string, error) {
	return s.dom, s.landed, s.title, s.err
}

func TestLinkedInFetch(t *testing.T) {
	nav := &stubNav{
		dom:    []byte(`<html><main>Jane Doe — Senior Engineer at Acme</main></html>`),
		landed: "https://www.linkedin.com/in/janedoe/",
		title:  "Jane Doe | LinkedIn",
	}
	f := NewLinkedIn(nav)
	res, err := f.Fetch(context.Background(), "https://www.linkedin.com/in/janedoe/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Title != "Jane Doe | LinkedIn" {
		t.Errorf("title: got %q", res.Title)
	}
	if len(res.Body) == 0 {
		t.Error("empty body")
	}
}

func TestLinkedInAuthwall(t *testing.T) {
	// WHAT: An expired session redirects to the authwall; the error must be
	// KindAuthExpired so the worker pauses the target instead of retrying.
	landings := []string{
		"https://www.linkedin.com/authwall?sessionRedirect=%2Fin%2Fjanedoe",
		"https://www.linkedin.com/login",
		"https://www.linkedin.com/uas/login?session_redirect=x",
		"https://www.linkedin.com/checkpoint/challenge",
	}
	for _, landed := range landings {
		nav := &stubNav{dom: []byte("<html>Sign in</html>"), landed: landed}
		f := NewLinkedIn(nav)
		_, err := f.Fetch(context.Background(), "https://www.linkedin.com/in/janedoe/")
		if err == nil {
			t.Errorf("%s: expected error", landed)
			continue
		}
		if got := KindOf(err); got != KindAuthExpired {
			t.Errorf("%s: kind = %v, want KindAuthExpired", landed, got)
		}
	}
}

func TestLinkedInNotFound(t *testing.T) {
	// WHAT: Deleted pages are served with HTTP 200 and a tombstone DOM.
	nav := &stubNav{
		dom:    []byte(`<html><h1>This page doesn’t exist</h1></html>`),
		landed: "https://www.linkedin.com/in/gone/",
	}
	f := NewLinkedIn(nav)
	_, err := f.Fetch(context.Background(), "https://www.linkedin.com/in/gone/")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := KindOf(err); got != KindNotFound {
		t.Errorf("kind = %v, want KindNotFound", got)
	}
}

func TestLinkedInTimeout(t *testing.T) {
	nav := &stubNav{err: context.DeadlineExceeded}
	f := NewLinkedIn(nav)
	_, err := f.Fetch(context.Background(), "https://www.linkedin.com/company/acme/")
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("kind = %v, want KindTimeout", got)
	}
}

func TestLinkedInEmptyDOM(t *testing.T) {
	nav := &stubNav{dom: []byte("  \n"), landed: "https://www.linkedin.com/in/janedoe/"}
	f := NewLinkedIn(nav)
	_, err := f.Fetch(context.Background(), "https://www.linkedin.com/in/janedoe/")
	if got := KindOf(err); got != KindParseFailure {
		t.Errorf("kind = %v, want KindParseFailure", got)
	}
}

func TestLinkedInRejectsForeignURL(t *testing.T) {
	f := NewLinkedIn(&stubNav{})
	_, err := f.Fetch(context.Background(), "https://example.com/in/janedoe/")
	if err == nil {
		t.Fatal("expected error for non-linkedin URL")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", errOf(KindRateLimited, "u", nil), KindRateLimited},
		{"wrapped", errors.Join(errors.New("x"), errOf(KindNotFound, "u", nil)), KindNotFound},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("boom"), KindUnknown},
		{"nil-ish", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}
