package core

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// GenerateDiff renders a line-level +/- view of what a preprocess pass did
// to one file. Unchanged lines are elided down to a count.
func GenerateDiff(name, current, desired string) string {
	if current == desired {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, c := dmp.DiffLinesToChars(current, desired)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), c)

	var buff strings.Builder
	fmt.Fprintf(&buff, "--- %s\n+++ %s (preprocessed)\n", name, name)
	for _, diff := range diffs {
		lines := splitLines(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			for _, line := range lines {
				buff.WriteString("+ " + line + "\n")
			}
		case diffmatchpatch.DiffDelete:
			for _, line := range lines {
				buff.WriteString("- " + line + "\n")
			}
		case diffmatchpatch.DiffEqual:
			if len(lines) > 0 {
				fmt.Fprintf(&buff, "  ... %d unchanged line(s)\n", len(lines))
			}
		}
	}
	return buff.String()
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
