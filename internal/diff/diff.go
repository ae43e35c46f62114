// Package diff compares file contents line by line and renders the result
// in the two formats GNU diff prints: the default "normal" format and the
// unified format of diff -u. Matching is done by go-difflib's sequence
// matcher.
package diff

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of unchanged lines diff -u shows around a change.
const DefaultContext = 3

// timeLayout is the timestamp GNU diff writes in unified headers.
const timeLayout = "2006-01-02 15:04:05.000000000 -0700"

// File is one side of a comparison.
type File struct {
	Name     string
	Modified time.Time
	Lines    []string
}

// Equal reports whether both sides have the same lines.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Normal renders the change commands of the default output format:
// "2c2", "< old", "---", "> new".
func Normal(a, b []string) []string {
	var out []string
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'd':
			out = append(out, fmt.Sprintf("%sd%d", span(op.I1+1, op.I2), op.J1))
			out = append(out, prefixed("< ", a[op.I1:op.I2])...)
		case 'i':
			out = append(out, fmt.Sprintf("%da%s", op.I1, span(op.J1+1, op.J2)))
			out = append(out, prefixed("> ", b[op.J1:op.J2])...)
		case 'r':
			out = append(out, fmt.Sprintf("%sc%s", span(op.I1+1, op.I2), span(op.J1+1, op.J2)))
			out = append(out, prefixed("< ", a[op.I1:op.I2])...)
			out = append(out, "---")
			out = append(out, prefixed("> ", b[op.J1:op.J2])...)
		}
	}
	return out
}

// Unified renders the diff -u output with its ---/+++ header.
func Unified(from, to File, context int) ([]string, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminated(from.Lines),
		B:        terminated(to.Lines),
		FromFile: from.Name,
		FromDate: from.Modified.Format(timeLayout),
		ToFile:   to.Name,
		ToDate:   to.Modified.Format(timeLayout),
		Context:  context,
	})
	if err != nil {
		return nil, fmt.Errorf("unified diff of %s and %s: %w", from.Name, to.Name, err)
	}
	if text == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}

// span formats an inclusive line range, collapsing single lines.
func span(from, to int) string {
	if from == to {
		return fmt.Sprint(from)
	}
	return fmt.Sprintf("%d,%d", from, to)
}

func prefixed(p string, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = p + l
	}
	return out
}

// terminated gives every line its newline, which difflib expects.
func terminated(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
