package canon

import (
	"strings"
	"testing"

	"github.com/hazyhaar/vigil/monitor/internal/store"
)

func TestWebsiteDeterministic(t *testing.T) {
	// WHAT: Same input always yields the same canonical text.
	// WHY: Change detection hashes the output; nondeterminism would fire
	// phantom changes.
	c := New()
	body := []byte(`<html><body><h1>Careers</h1><p>We are   hiring a
		<b>Senior</b> Engineer.</p></body></html>`)

	first, err := c.Website(body)
	if err != nil {
		t.Fatalf("Website: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Website(body)
		if err != nil {
			t.Fatalf("Website run %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("run %d differs:\n%q\nvs\n%q", i, again, first)
		}
	}
}

func TestWebsiteStripsScriptsAndChurn(t *testing.T) {
	// WHAT: Script bodies, style blocks, and attribute churn do not appear
	// in canonical output.
	c := New()
	a := []byte(`<html><body data-session="abc123">
		<script>var t = Date.now();</script>
		<style>.x { color: red }</style>
		<p class="p-1" id="r-991">Quarterly results are up.</p></body></html>`)
	b := []byte(`<html><body data-session="zzz999">
		<script>var t = Date.now() + 1;</script>
		<p class="p-2" id="r-314">Quarterly results are up.</p></body></html>`)

	ca, err := c.Website(a)
	if err != nil {
		t.Fatalf("Website a: %v", err)
	}
	cb, err := c.Website(b)
	if err != nil {
		t.Fatalf("Website b: %v", err)
	}
	if ca != cb {
		t.Errorf("markup churn leaked into canonical form:\n%q\nvs\n%q", ca, cb)
	}
	if strings.Contains(ca, "Date.now") {
		t.Error("script body survived canonicalization")
	}
}

func TestWebsiteKeepsStructure(t *testing.T) {
	c := New()
	body := []byte(`<html><body><h2>Open roles</h2><ul><li>Engineer</li><li>Designer</li></ul></body></html>`)
	out, err := c.Website(body)
	if err != nil {
		t.Fatalf("Website: %v", err)
	}
	for _, want := range []string{"Open roles", "Engineer", "Designer"} {
		if !strings.Contains(out, want) {
			t.Errorf("canonical output lost %q:\n%s", want, out)
		}
	}
}

func TestWebsiteEmptyDocument(t *testing.T) {
	c := New()
	if _, err := c.Website([]byte(`<html><body><script>x()</script></body></html>`)); err == nil {
		t.Fatal("expected error for content-free document")
	}
}

func TestLinkedInStripsTrackingLinks(t *testing.T) {
	// WHAT: Link labels survive, per-render tracking URLs do not.
	c := New()
	a := []byte(`<html><body><main>
		<h1>Jane Doe</h1>
		<p>Senior Engineer at <a href="/company/acme?trk=abc-123">Acme</a></p>
	</main></body></html>`)
	b := []byte(`<html><body><main>
		<h1>Jane Doe</h1>
		<p>Senior Engineer at <a href="/company/acme?trk=xyz-999">Acme</a></p>
	</main></body></html>`)

	ca, err := c.LinkedIn(a)
	if err != nil {
		t.Fatalf("LinkedIn a: %v", err)
	}
	cb, err := c.LinkedIn(b)
	if err != nil {
		t.Fatalf("LinkedIn b: %v", err)
	}
	if ca != cb {
		t.Errorf("tracking URL leaked into canonical form:\n%q\nvs\n%q", ca, cb)
	}
	if !strings.Contains(ca, "Acme") {
		t.Errorf("link label lost: %q", ca)
	}
	if strings.Contains(ca, "trk=") {
		t.Errorf("tracking param survived: %q", ca)
	}
}

func TestFor(t *testing.T) {
	c := New()
	for _, typ := range []string{store.TypeWebsite, store.TypeLinkedInProfile, store.TypeLinkedInCompany} {
		if _, err := c.For(typ); err != nil {
			t.Errorf("For(%q): %v", typ, err)
		}
	}
	if _, err := c.For("gopher_mail"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestNormalizeLines(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"collapse spaces", "a   b\t c", "a b c"},
		{"drop empties", "a\n\n\n  \nb", "a\nb"},
		{"zero width", "a\u200bb", "ab"},
		{"trim", "  hello  ", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeLines(tt.in); got != tt.want {
				t.Errorf("normalizeLines(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripLinkTargets(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[Acme](https://x.test/a?trk=1)", "Acme"},
		{"plain text", "plain text"},
		{"a [b](u) c [d](v)", "a b c d"},
		{"[dangling", "[dangling"},
		{"[no-paren] text", "[no-paren] text"},
	}
	for _, tt := range tests {
		if got := stripLinkTargets(tt.in); got != tt.want {
			t.Errorf("stripLinkTargets(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
