// Package plan holds the hierarchical task tree the agent works through:
// parsing it from XML, updating task state, checking dependencies and
// applying structural patches issued by the model.
package plan

import (
	"strconv"
	"strings"
)

// Status is the lifecycle state of a task. Values outside the known set are
// kept verbatim since they come straight from model output.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists the known states in lifecycle order.
var Statuses = []Status{StatusPending, StatusReady, StatusInProgress, StatusCompleted, StatusFailed}

// IsKnown reports whether s is one of the lifecycle states.
func (s Status) IsKnown() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Complexity is an advisory size estimate with no behavioural effect.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Attr is an attribute the tree does not interpret but must carry through.
type Attr struct {
	Key   string
	Value string
}

// Task is one node of the plan tree.
type Task struct {
	ID          string
	Description string
	Status      Status
	Complexity  Complexity
	DependsOn   []string
	Progress    *int
	Notes       string
	Extra       []Attr
	Children    []*Task

	// dependsSet records that depends_on was present, even if empty, so it
	// survives a parse/serialize cycle.
	dependsSet bool
	parent     *Task
}

// Parent returns the enclosing task, or nil for a top-level task.
func (t *Task) Parent() *Task {
	return t.parent
}

// ProgressValue returns the progress percentage, treating an absent value as 0.
func (t *Task) ProgressValue() int {
	if t.Progress == nil {
		return 0
	}
	return *t.Progress
}

// SetProgress stores p as the task progress.
func (t *Task) SetProgress(p int) {
	t.Progress = &p
}

// SetDependsOn replaces the dependency list.
func (t *Task) SetDependsOn(ids []string) {
	t.DependsOn = ids
	t.dependsSet = true
}

// AddChild appends child under t and links its parent reference.
func (t *Task) AddChild(child *Task) {
	child.parent = t
	t.Children = append(t.Children, child)
}

// SetAttr assigns a serialized attribute to the matching field. Unknown keys
// are kept in Extra, replacing an earlier value with the same key. An
// unparsable progress value is ignored.
func (t *Task) SetAttr(key, value string) {
	switch key {
	case "id":
		t.ID = value
	case "description":
		t.Description = value
	case "status":
		t.Status = Status(value)
	case "complexity":
		t.Complexity = Complexity(value)
	case "depends_on":
		t.SetDependsOn(ParseDependsOn(value))
	case "progress":
		if p, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			t.SetProgress(p)
		}
	case "notes":
		t.Notes = value
	default:
		for i := range t.Extra {
			if t.Extra[i].Key == key {
				t.Extra[i].Value = value
				return
			}
		}
		t.Extra = append(t.Extra, Attr{Key: key, Value: value})
	}
}

// Attrs returns the attributes in serialization order.
func (t *Task) Attrs() []Attr {
	attrs := make([]Attr, 0, 7+len(t.Extra))
	attrs = append(attrs, Attr{Key: "id", Value: t.ID})
	if t.Description != "" {
		attrs = append(attrs, Attr{Key: "description", Value: t.Description})
	}
	if t.Status != "" {
		attrs = append(attrs, Attr{Key: "status", Value: string(t.Status)})
	}
	if t.Complexity != "" {
		attrs = append(attrs, Attr{Key: "complexity", Value: string(t.Complexity)})
	}
	if t.dependsSet || len(t.DependsOn) > 0 {
		attrs = append(attrs, Attr{Key: "depends_on", Value: strings.Join(t.DependsOn, ",")})
	}
	if t.Progress != nil {
		attrs = append(attrs, Attr{Key: "progress", Value: strconv.Itoa(*t.Progress)})
	}
	if t.Notes != "" {
		attrs = append(attrs, Attr{Key: "notes", Value: t.Notes})
	}
	return append(attrs, t.Extra...)
}

// ParseDependsOn splits a comma-separated id list, dropping blanks.
func ParseDependsOn(value string) []string {
	var ids []string
	for _, part := range strings.Split(value, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
