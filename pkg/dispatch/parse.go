// Package dispatch turns the action sections of a model response into file
// writes and shell commands, asking the user before each one.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// Action types understood inside <actions>.
const (
	ActionCreateFile = "create_file"
	ActionModifyFile = "modify_file"
	ActionRunCommand = "run_command"
)

// Action is one <action> element.
type Action struct {
	Type    string
	Path    string
	Content string
	Changes []tools.Change
	Command string
}

// FileEdit is one <edit> element of <file_edits>. HasSearch and HasReplace
// record whether the elements were present at all.
type FileEdit struct {
	Path       string
	Search     string
	Replace    string
	HasSearch  bool
	HasReplace bool
}

// ShellCommand is one <command> element of <shell_commands>.
type ShellCommand struct {
	Command       string
	SafeToAutorun bool
}

func parseSection(section, tag string) (*etree.Element, error) {
	root, err := xmlutil.ParseElement(section)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", tag, err)
	}
	if root.Tag != tag {
		return nil, fmt.Errorf("failed to parse %s: unexpected root <%s>", tag, root.Tag)
	}
	return root, nil
}

// ParseActions reads an <actions> section.
func ParseActions(section string) ([]Action, error) {
	root, err := parseSection(section, "actions")
	if err != nil {
		return nil, err
	}
	var actions []Action
	for _, el := range root.SelectElements("action") {
		a := Action{
			Type:    el.SelectAttrValue("type", "unknown"),
			Path:    el.SelectAttrValue("path", ""),
			Command: el.SelectAttrValue("command", ""),
		}
		switch a.Type {
		case ActionCreateFile:
			a.Content = actionContent(el)
		case ActionModifyFile:
			for _, ch := range el.SelectElements("change") {
				original, _ := xmlutil.ChildText(ch, "original")
				replacement, _ := xmlutil.ChildText(ch, "new")
				a.Changes = append(a.Changes, tools.Change{Original: original, New: replacement})
			}
		case ActionRunCommand:
			if a.Command == "" {
				a.Command = strings.TrimSpace(xmlutil.ElementText(el))
			}
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// actionContent is the file body of a create_file action. Markup inside
// the action (an XML or HTML file, say) is kept as written.
func actionContent(el *etree.Element) string {
	if len(el.ChildElements()) > 0 {
		return strings.TrimSpace(xmlutil.InnerXML(el))
	}
	return strings.TrimSpace(xmlutil.ElementText(el))
}

// ParseFileEdits reads a <file_edits> section.
func ParseFileEdits(section string) ([]FileEdit, error) {
	root, err := parseSection(section, "file_edits")
	if err != nil {
		return nil, err
	}
	var edits []FileEdit
	for _, el := range root.SelectElements("edit") {
		e := FileEdit{Path: el.SelectAttrValue("path", "")}
		e.Search, e.HasSearch = xmlutil.ChildText(el, "search")
		e.Replace, e.HasReplace = xmlutil.ChildText(el, "replace")
		edits = append(edits, e)
	}
	return edits, nil
}

// ParseShellCommands reads a <shell_commands> section.
func ParseShellCommands(section string) ([]ShellCommand, error) {
	root, err := parseSection(section, "shell_commands")
	if err != nil {
		return nil, err
	}
	var cmds []ShellCommand
	for _, el := range root.SelectElements("command") {
		cmds = append(cmds, ShellCommand{
			Command:       strings.TrimSpace(xmlutil.ElementText(el)),
			SafeToAutorun: strings.EqualFold(el.SelectAttrValue("safe_to_autorun", "false"), "true"),
		})
	}
	return cmds, nil
}
