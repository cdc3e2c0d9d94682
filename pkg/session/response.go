package session

import (
	"fmt"
	"strings"

	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// Sections holds the raw XML of each recognised part of a model answer.
// A missing part is the empty string.
type Sections struct {
	Message         string
	Actions         string
	ShellCommands   string
	FileEdits       string
	MemoryUpdates   string
	ExecutionStatus string
	PlanUpdates     []string
}

// ExtractSections pulls every known section out of response.
func ExtractSections(response string) Sections {
	get := func(tag string) string {
		s, _ := xmlutil.ExtractTaggedSection(response, tag)
		return s
	}
	s := Sections{
		Message:         get("message"),
		Actions:         get("actions"),
		ShellCommands:   get("shell_commands"),
		FileEdits:       get("file_edits"),
		MemoryUpdates:   get("memory_updates"),
		ExecutionStatus: get("execution_status"),
	}
	for _, tag := range []string{"plan_update", "plan_updates"} {
		if u := get(tag); u != "" {
			s.PlanUpdates = append(s.PlanUpdates, u)
		}
	}
	return s
}

// HistoryContent is what an assistant turn is remembered as: the sections
// relevant to later turns, or the raw response when none were found.
func (s Sections) HistoryContent(raw string) string {
	var b strings.Builder
	for _, part := range []string{s.Message, s.Actions, s.ShellCommands, s.FileEdits, s.ExecutionStatus} {
		if part != "" {
			b.WriteString(part)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return raw
	}
	return b.String()
}

// MessageText returns the text of the <message> section. Markup that does
// not parse is returned as is.
func (s Sections) MessageText() string {
	if s.Message == "" {
		return ""
	}
	el, err := xmlutil.ParseElement(s.Message)
	if err != nil {
		return s.Message
	}
	if len(el.ChildElements()) > 0 {
		return strings.TrimSpace(xmlutil.InnerXML(el))
	}
	return strings.TrimSpace(xmlutil.ElementText(el))
}

// ExecutionStatus is the model's own account of where the work stands.
type ExecutionStatus struct {
	Complete       bool
	NeedsUserInput bool
	Message        string
}

// ParseExecutionStatus reads an <execution_status> section.
func ParseExecutionStatus(section string) (ExecutionStatus, error) {
	el, err := xmlutil.ParseElement(section)
	if err != nil {
		return ExecutionStatus{}, err
	}
	if el.Tag != "execution_status" {
		return ExecutionStatus{}, fmt.Errorf("expected <execution_status>, got <%s>", el.Tag)
	}
	st := ExecutionStatus{
		Complete:       strings.EqualFold(el.SelectAttrValue("complete", "false"), "true"),
		NeedsUserInput: strings.EqualFold(el.SelectAttrValue("needs_user_input", "false"), "true"),
	}
	msg, _ := xmlutil.ChildText(el, "message")
	st.Message = strings.TrimSpace(msg)
	return st, nil
}
