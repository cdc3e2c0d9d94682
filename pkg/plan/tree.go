package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

const (
	rootTag = "plan"
	taskTag = "task"
)

var (
	// ErrNoPlanElement is returned when a document holds no <plan> element.
	ErrNoPlanElement = errors.New("no <plan> element found")
	// ErrTaskNotFound is returned when no task carries the requested id.
	ErrTaskNotFound = errors.New("task not found")
)

// Tree is the parsed plan. Top-level tasks sit directly under the <plan>
// element; by convention there is exactly one.
type Tree struct {
	Attrs []Attr
	Tasks []*Task
}

// New returns an empty plan.
func New() *Tree {
	return &Tree{}
}

// Parse reads the first <plan> element found in text. The plan may be the
// whole document or be wrapped in a larger response.
func Parse(text string) (*Tree, error) {
	section, ok := xmlutil.ExtractTaggedSection(text, rootTag)
	if !ok {
		trimmed := strings.TrimSpace(text)
		if !strings.HasPrefix(trimmed, "<"+rootTag) {
			return nil, ErrNoPlanElement
		}
		// Self-closing <plan/> has no closing tag to anchor on.
		section = trimmed
	}
	root, err := xmlutil.ParseElement(section)
	if err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if root.Tag != rootTag {
		return nil, ErrNoPlanElement
	}

	tree := &Tree{}
	for _, a := range root.Attr {
		tree.Attrs = append(tree.Attrs, Attr{Key: a.FullKey(), Value: a.Value})
	}
	for _, el := range root.ChildElements() {
		if el.Tag == taskTag {
			tree.Tasks = append(tree.Tasks, taskFromElement(el, nil))
		}
	}
	return tree, nil
}

func taskFromElement(el *etree.Element, parent *Task) *Task {
	t := &Task{parent: parent}
	for _, a := range el.Attr {
		t.SetAttr(a.FullKey(), a.Value)
	}
	for _, child := range el.ChildElements() {
		if child.Tag == taskTag {
			t.Children = append(t.Children, taskFromElement(child, t))
		}
	}
	return t
}

// Element builds the etree representation of the plan.
func (tr *Tree) Element() *etree.Element {
	root := etree.NewElement(rootTag)
	for _, a := range tr.Attrs {
		root.CreateAttr(a.Key, a.Value)
	}
	for _, t := range tr.Tasks {
		root.AddChild(taskElement(t))
	}
	return root
}

func taskElement(t *Task) *etree.Element {
	el := etree.NewElement(taskTag)
	for _, a := range t.Attrs() {
		el.CreateAttr(a.Key, a.Value)
	}
	for _, c := range t.Children {
		el.AddChild(taskElement(c))
	}
	return el
}

// String returns the canonical compact XML form of the plan.
func (tr *Tree) String() string {
	return xmlutil.Compact(tr.Element())
}

// Pretty returns the plan indented for prompts and display.
func (tr *Tree) Pretty() string {
	return xmlutil.PrettyPrint(tr.String())
}

// Walk visits every task depth-first in document order. Returning false
// from fn stops the walk.
func (tr *Tree) Walk(fn func(t *Task) bool) {
	var visit func(tasks []*Task) bool
	visit = func(tasks []*Task) bool {
		for _, t := range tasks {
			if !fn(t) {
				return false
			}
			if !visit(t.Children) {
				return false
			}
		}
		return true
	}
	visit(tr.Tasks)
}

// FindTask returns the first task with the given id at any depth.
func (tr *Tree) FindTask(id string) *Task {
	var found *Task
	tr.Walk(func(t *Task) bool {
		if t.ID == id {
			found = t
			return false
		}
		return true
	})
	return found
}

// FindAll returns every task carrying id.
func (tr *Tree) FindAll(id string) []*Task {
	var matches []*Task
	tr.Walk(func(t *Task) bool {
		if t.ID == id {
			matches = append(matches, t)
		}
		return true
	})
	return matches
}

// Parent returns the parent of the first task with id, or nil when the task
// is top-level or absent.
func (tr *Tree) Parent(id string) *Task {
	if t := tr.FindTask(id); t != nil {
		return t.parent
	}
	return nil
}

// Count returns the number of tasks in the tree.
func (tr *Tree) Count() int {
	n := 0
	tr.Walk(func(*Task) bool {
		n++
		return true
	})
	return n
}

// remove detaches t from its parent or from the top level.
func (tr *Tree) remove(t *Task) bool {
	siblings := &tr.Tasks
	if t.parent != nil {
		siblings = &t.parent.Children
	}
	for i, s := range *siblings {
		if s == t {
			*siblings = append((*siblings)[:i], (*siblings)[i+1:]...)
			t.parent = nil
			return true
		}
	}
	return false
}
