package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/vigil/monitor/internal/diff"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// TextSummarizer produces a plain-language summary straight from the diff
// segments, without calling out to any analysis service.
type TextSummarizer struct {
	// MaxExamples bounds how many changed lines are quoted. Default: 3.
	MaxExamples int
}

// Summarize renders counts plus the first few changed lines.
func (s *TextSummarizer) Summarize(_ context.Context, target *store.Target, segments []diff.Segment) (string, error) {
	maxExamples := s.MaxExamples
	if maxExamples <= 0 {
		maxExamples = 3
	}

	var added, removed, modified int
	for _, seg := range segments {
		switch seg.Op {
		case diff.OpAdded:
			added++
		case diff.OpRemoved:
			removed++
		case diff.OpModified:
			modified++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s changed", target.URL)
	var parts []string
	if modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", modified))
	}
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", removed))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(parts, ", "))
	}

	for i, seg := range segments {
		if i >= maxExamples {
			fmt.Fprintf(&sb, "; and %d more", len(segments)-maxExamples)
			break
		}
		switch seg.Op {
		case diff.OpModified:
			fmt.Fprintf(&sb, "; %q is now %q", clip(seg.Before), clip(seg.After))
		case diff.OpAdded:
			fmt.Fprintf(&sb, "; added %q", clip(seg.After))
		case diff.OpRemoved:
			fmt.Fprintf(&sb, "; removed %q", clip(seg.Before))
		}
	}
	return sb.String(), nil
}

func clip(s string) string {
	const maxLen = 120
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
