package ui

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/alantheprice/xmlagent/pkg/plan"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// StatusLabel renders a status for display, e.g. "in-progress" as "In-Progress".
func StatusLabel(s plan.Status) string {
	if s == "" {
		s = plan.StatusPending
	}
	return titleCaser.String(string(s))
}

// RenderPlan draws the plan as an indented tree with colored status badges
// and a completion summary line.
func RenderPlan(theme Theme, tree *plan.Tree) string {
	if tree == nil || len(tree.Tasks) == 0 {
		return theme.Comment.Render("No plan exists")
	}
	var b strings.Builder
	sum := tree.Summary()
	b.WriteString(theme.Heading.Render(fmt.Sprintf("Plan: %d tasks, %d%% complete", sum.Total, sum.Percent)))
	b.WriteString("\n")
	for i, t := range tree.Tasks {
		renderTask(&b, theme, t, "", i == len(tree.Tasks)-1)
	}
	var counts []string
	for _, s := range plan.Statuses {
		if n := sum.ByStatus[s]; n > 0 {
			counts = append(counts, theme.StatusStyle(string(s)).Render(fmt.Sprintf("%s: %d", StatusLabel(s), n)))
		}
	}
	if len(counts) > 0 {
		b.WriteString(strings.Join(counts, "  "))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTask(b *strings.Builder, theme Theme, t *plan.Task, prefix string, last bool) {
	branch, childPrefix := "├── ", prefix+"│   "
	if last {
		branch, childPrefix = "└── ", prefix+"    "
	}
	status := t.Status
	if status == "" {
		status = plan.StatusPending
	}
	badge := theme.StatusStyle(string(status)).Render("[" + StatusLabel(status) + "]")

	line := fmt.Sprintf("%s%s%s %s %s", prefix, branch, t.ID, badge, t.Description)
	if t.Progress != nil && status != plan.StatusCompleted {
		line += theme.Comment.Render(fmt.Sprintf(" (%d%%)", *t.Progress))
	}
	if len(t.DependsOn) > 0 {
		line += theme.Comment.Render(" depends on " + strings.Join(t.DependsOn, ", "))
	}
	b.WriteString(line)
	b.WriteString("\n")
	if t.Notes != "" {
		b.WriteString(childPrefix + theme.Comment.Render("note: "+t.Notes) + "\n")
	}
	for i, c := range t.Children {
		renderTask(b, theme, c, childPrefix, i == len(t.Children)-1)
	}
}
