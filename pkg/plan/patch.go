package plan

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// ChangeLog collects one human-readable line per applied patch directive.
type ChangeLog []string

func (c ChangeLog) String() string {
	return strings.Join(c, "\n")
}

// ApplyPatch applies a <plan_update> document. All add_task directives run
// first, then modify_task, then remove_task, each group in document order.
// Directives whose target cannot be found are skipped silently, as is an
// add_task that would duplicate an existing id. An error is returned only
// when the patch itself does not parse.
func (tr *Tree) ApplyPatch(patch string) (ChangeLog, error) {
	root, err := parsePatch(patch)
	if err != nil {
		return nil, err
	}

	var log ChangeLog
	for _, el := range root.SelectElements("add_task") {
		if line, ok := tr.addTask(el); ok {
			log = append(log, line)
		}
	}
	for _, el := range root.SelectElements("modify_task") {
		if line, ok := tr.modifyTask(el); ok {
			log = append(log, line)
		}
	}
	for _, el := range root.SelectElements("remove_task") {
		if line, ok := tr.removeTask(el); ok {
			log = append(log, line)
		}
	}
	return log, nil
}

func parsePatch(patch string) (*etree.Element, error) {
	for _, tag := range []string{"plan_update", "plan_updates"} {
		if section, ok := xmlutil.ExtractTaggedSection(patch, tag); ok {
			patch = section
			break
		}
	}
	root, err := xmlutil.ParseElement(strings.TrimSpace(patch))
	if err != nil {
		return nil, fmt.Errorf("parse plan update: %w", err)
	}
	return root, nil
}

func (tr *Tree) addTask(el *etree.Element) (string, bool) {
	parentID := el.SelectAttrValue("parent_id", "")
	if parentID == "" {
		return "", false
	}
	parent := tr.FindTask(parentID)
	if parent == nil {
		return "", false
	}
	if id := el.SelectAttrValue("id", ""); id == "" || tr.FindTask(id) != nil {
		return "", false
	}
	t := &Task{}
	for _, a := range el.Attr {
		if a.FullKey() == "parent_id" {
			continue
		}
		t.SetAttr(a.FullKey(), a.Value)
	}
	parent.AddChild(t)
	return fmt.Sprintf("Added new task %s: %s", t.ID, t.Description), true
}

func (tr *Tree) modifyTask(el *etree.Element) (string, bool) {
	id := el.SelectAttrValue("id", "")
	if id == "" {
		return "", false
	}
	t := tr.FindTask(id)
	if t == nil {
		return "", false
	}
	oldDesc := t.Description
	for _, a := range el.Attr {
		if a.FullKey() == "id" {
			continue
		}
		t.SetAttr(a.FullKey(), a.Value)
	}
	if el.SelectAttr("description") != nil && oldDesc != t.Description {
		return fmt.Sprintf("Modified task %s: %s -> %s", id, oldDesc, t.Description), true
	}
	return fmt.Sprintf("Updated attributes for task %s", id), true
}

func (tr *Tree) removeTask(el *etree.Element) (string, bool) {
	id := el.SelectAttrValue("id", "")
	if id == "" {
		return "", false
	}
	t := tr.FindTask(id)
	if t == nil || !tr.remove(t) {
		return "", false
	}
	return fmt.Sprintf("Removed task %s: %s", id, t.Description), true
}
