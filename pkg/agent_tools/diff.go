package tools

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	RedColor   = "\x1b[31m"
	GreenColor = "\x1b[32m"
	ResetColor = "\x1b[0m"
)

// DiffStats counts changed lines.
type DiffStats struct {
	Additions int
	Deletions int
}

// LineDiff returns a line-oriented diff of before and after, prefixing
// removed lines with "- " and added ones with "+ ". Unchanged lines are
// omitted except for one line of context around each change.
func LineDiff(before, after string, color bool) (string, DiffStats) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	var stats DiffStats
	var pendingContext string
	lastWasChange := false

	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text == "" {
			continue
		}
		split := strings.Split(text, "\n")
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if lastWasChange {
				out.WriteString("  " + split[0] + "\n")
			}
			pendingContext = split[len(split)-1]
			lastWasChange = false
		case diffmatchpatch.DiffDelete, diffmatchpatch.DiffInsert:
			if !lastWasChange && pendingContext != "" {
				out.WriteString("  " + pendingContext + "\n")
				pendingContext = ""
			}
			prefix, start, end := "+ ", GreenColor, ResetColor
			if d.Type == diffmatchpatch.DiffDelete {
				prefix, start = "- ", RedColor
				stats.Deletions += len(split)
			} else {
				stats.Additions += len(split)
			}
			if !color {
				start, end = "", ""
			}
			for _, line := range split {
				out.WriteString(start + prefix + line + end + "\n")
			}
			lastWasChange = true
		}
	}
	return out.String(), stats
}

// Diff renders a colored diff preview headed by the file name and line counts.
func Diff(filename, before, after string) string {
	body, stats := LineDiff(before, after, true)
	if body == "" {
		return fmt.Sprintf("%s: no changes\n", filename)
	}
	return fmt.Sprintf("%s (+%d -%d)\n%s", filename, stats.Additions, stats.Deletions, body)
}
