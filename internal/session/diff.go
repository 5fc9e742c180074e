package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/roach88/querybuilder/internal/canonical"
)

// ChangeKind is the kind of one diff hunk.
type ChangeKind int

const (
	ChangeEqual ChangeKind = iota
	ChangeInsert
	ChangeDelete
)

// Change is a run of lines that are kept, inserted or deleted.
type Change struct {
	Kind ChangeKind
	Text string
}

// DiffJSON returns the line diff between the indented canonical forms of
// two JSON values.
func DiffJSON(before, after any) ([]Change, error) {
	a, err := indented(before)
	if err != nil {
		return nil, fmt.Errorf("diff before: %w", err)
	}
	b, err := indented(after)
	if err != nil {
		return nil, fmt.Errorf("diff after: %w", err)
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	out := make([]Change, 0, len(diffs))
	for _, d := range diffs {
		kind := ChangeEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = ChangeInsert
		case diffmatchpatch.DiffDelete:
			kind = ChangeDelete
		}
		out = append(out, Change{Kind: kind, Text: d.Text})
	}
	return out, nil
}

func indented(v any) (string, error) {
	data, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// FormatDiff renders changes one line at a time, prefixed with "+", "-"
// or a space.
func FormatDiff(changes []Change) string {
	var sb strings.Builder
	for _, c := range changes {
		prefix := " "
		switch c.Kind {
		case ChangeInsert:
			prefix = "+"
		case ChangeDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(c.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	return sb.String()
}

// HasDifferences reports whether changes contain an insert or delete.
func HasDifferences(changes []Change) bool {
	for _, c := range changes {
		if c.Kind != ChangeEqual {
			return true
		}
	}
	return false
}
