// Package diff computes content hashes and line-level differences between
// canonical snapshots. The diff is deterministic: the same pair of inputs
// always yields the same segments.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Op classifies a diff segment.
type Op string

const (
	OpAdded    Op = "added"
	OpRemoved  Op = "removed"
	OpModified Op = "modified"
)

// Segment is one contiguous difference between two canonical texts.
// Added segments carry After only, removed segments Before only, modified
// segments both.
type Segment struct {
	Op     Op     `json:"op"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Hash returns the lowercase hex SHA-256 of canonical content.
func Hash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Compute diffs two canonical texts line by line. Equal inputs produce nil.
// Swapping the inputs yields the structural inverse: added and removed trade
// places and modified segments swap sides.
func Compute(before, after string) []Segment {
	if before == after {
		return nil
	}
	// LCS tie-breaks depend on input order. Orienting the pair canonically
	// and inverting keeps the two directions mirror images of each other.
	if before > after {
		return invert(Compute(after, before))
	}
	a := splitLines(before)
	b := splitLines(after)

	var segs []Segment
	var removed, added []string
	flush := func() {
		// A run of removals followed by additions reads as modification:
		// pair them up positionally, emit the overhang as pure add/remove.
		n := min(len(removed), len(added))
		for i := 0; i < n; i++ {
			segs = append(segs, Segment{Op: OpModified, Before: removed[i], After: added[i]})
		}
		for _, l := range removed[n:] {
			segs = append(segs, Segment{Op: OpRemoved, Before: l})
		}
		for _, l := range added[n:] {
			segs = append(segs, Segment{Op: OpAdded, After: l})
		}
		removed, added = nil, nil
	}

	for _, e := range lcsEdits(a, b) {
		switch e.op {
		case editKeep:
			flush()
		case editRemove:
			removed = append(removed, e.line)
		case editAdd:
			added = append(added, e.line)
		}
	}
	flush()
	return segs
}

// invert reverses the direction of an edit script.
func invert(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		switch s.Op {
		case OpAdded:
			out[i] = Segment{Op: OpRemoved, Before: s.After}
		case OpRemoved:
			out[i] = Segment{Op: OpAdded, After: s.Before}
		default:
			out[i] = Segment{Op: OpModified, Before: s.After, After: s.Before}
		}
	}
	return out
}

// Marshal serialises segments for storage in a change record.
func Marshal(segs []Segment) (string, error) {
	if segs == nil {
		segs = []Segment{}
	}
	data, err := json.Marshal(segs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Unmarshal decodes a stored diff.
func Unmarshal(s string) ([]Segment, error) {
	var segs []Segment
	if err := json.Unmarshal([]byte(s), &segs); err != nil {
		return nil, err
	}
	return segs, nil
}

type editOp int

const (
	editKeep editOp = iota
	editRemove
	editAdd
)

type edit struct {
	op   editOp
	line string
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// lcsEdits produces an edit script via a longest-common-subsequence table.
// Canonical texts are line-deduplicated and modest in size, so the O(n*m)
// table is fine here.
func lcsEdits(a, b []string) []edit {
	n, m := len(a), len(b)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else {
				table[i][j] = max(table[i+1][j], table[i][j+1])
			}
		}
	}

	var edits []edit
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			edits = append(edits, edit{editKeep, a[i]})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			edits = append(edits, edit{editRemove, a[i]})
			i++
		default:
			edits = append(edits, edit{editAdd, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		edits = append(edits, edit{editRemove, a[i]})
	}
	for ; j < m; j++ {
		edits = append(edits, edit{editAdd, b[j]})
	}
	return edits
}
