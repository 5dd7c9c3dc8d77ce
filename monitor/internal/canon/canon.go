// Package canon reduces fetched content to a canonical text form so that
// volatile markup (session tokens, ad slots, attribute churn) does not
// register as a change. Canonicalization is deterministic: the same input
// always yields the same output.
package canon

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// Func converts a raw fetch body into canonical text.
type Func func(body []byte) (string, error)

// Canonicalizer holds the shared sanitizer and markdown converter. Safe for
// concurrent use.
type Canonicalizer struct {
	policy    *bluemonday.Policy
	converter *converter.Converter
}

// New creates a Canonicalizer.
func New() *Canonicalizer {
	// Keep structural markup only. Scripts, styles, inline event handlers,
	// and tracking attributes all disappear before conversion.
	policy := bluemonday.UGCPolicy()
	return &Canonicalizer{
		policy: policy,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// For returns the canonicalization function for a target type.
func (c *Canonicalizer) For(targetType string) (Func, error) {
	switch targetType {
	case store.TypeWebsite:
		return c.Website, nil
	case store.TypeLinkedInProfile, store.TypeLinkedInCompany:
		return c.LinkedIn, nil
	default:
		return nil, fmt.Errorf("canon: no canonicalizer for target type %q", targetType)
	}
}

// Website sanitizes HTML and converts it to markdown-shaped text.
func (c *Canonicalizer) Website(body []byte) (string, error) {
	clean := c.policy.SanitizeBytes(body)
	md, err := c.converter.ConvertString(string(clean))
	if err != nil {
		return "", fmt.Errorf("canon: convert html: %w", err)
	}
	out := normalizeLines(md)
	if out == "" {
		return "", fmt.Errorf("canon: document reduced to nothing")
	}
	return out, nil
}

// LinkedIn reduces a rendered profile or company DOM to its visible text,
// one block per line. LinkedIn markup churns on every render, so only text
// content participates in change detection.
func (c *Canonicalizer) LinkedIn(body []byte) (string, error) {
	clean := c.policy.SanitizeBytes(body)
	md, err := c.converter.ConvertString(string(clean))
	if err != nil {
		return "", fmt.Errorf("canon: convert dom: %w", err)
	}
	// Strip link targets: profile URLs carry per-render tracking params.
	out := normalizeLines(stripLinkTargets(md))
	if out == "" {
		return "", fmt.Errorf("canon: page reduced to nothing")
	}
	return out, nil
}

// normalizeLines collapses intra-line whitespace, removes zero-width
// characters, drops empty lines, and joins with single newlines.
func normalizeLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Map(func(r rune) rune {
			switch r {
			case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
				return -1
			}
			return r
		}, line)
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// stripLinkTargets rewrites [text](url) to text, keeping only the visible
// label.
func stripLinkTargets(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '[' {
			end := strings.IndexByte(s[i:], ']')
			if end > 0 && i+end+1 < len(s) && s[i+end+1] == '(' {
				close := strings.IndexByte(s[i+end+1:], ')')
				if close > 0 {
					sb.WriteString(s[i+1 : i+end])
					i += end + 1 + close + 1
					continue
				}
			}
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}
