// Package prompts builds the text sent to the model.
package prompts

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// ResponseSchema describes every section the agent understands in a model
// answer. It is embedded in chat, continuation and task prompts.
const ResponseSchema = `<xml_schema>
  <!-- Response schema - all responses must follow this structure -->
  <response>
    <!-- Optional message to the user -->
    <message>Your response text here. Can include markdown formatting.</message>

    <!-- Optional actions to execute -->
    <actions>
      <!-- Create a new file -->
      <action type="create_file" path="example.go">
        // Go code here
      </action>

      <!-- Modify an existing file -->
      <action type="modify_file" path="existing.go">
        <change>
          <original>func oldFunction() {</original>
          <new>func newFunction() {</new>
        </change>
      </action>

      <!-- Run a shell command -->
      <action type="run_command" command="go test ./..."/>
    </actions>

    <!-- Optional file edits (search and replace) -->
    <file_edits>
      <edit path="path/to/file.go">
        <search>func oldFunction() {</search>
        <replace>func newFunction() {</replace>
      </edit>
      <edit path="path/to/new_file.go">
        <search></search>
        <replace>// New file content here</replace>
      </edit>
    </file_edits>

    <!-- Optional shell commands -->
    <shell_commands>
      <command safe_to_autorun="true">ls -la</command>
      <command safe_to_autorun="false">rm -rf some_directory</command>
    </shell_commands>

    <!-- Optional memory updates -->
    <memory_updates>
      <edit>
        <search>Old information to replace</search>
        <replace>Updated information</replace>
      </edit>
      <append>New information to remember</append>
    </memory_updates>

    <!-- Optional execution status -->
    <execution_status complete="true|false" needs_user_input="true|false">
      <message>Status message explaining what's done or what's needed</message>
    </execution_status>

    <!-- Optional plan updates -->
    <plan_update>
      <add_task parent_id="task1" id="task1.3" description="New subtask" status="pending" complexity="medium" depends_on="" progress="0"/>
      <modify_task id="task2" description="Updated description"/>
      <remove_task id="task3"/>
    </plan_update>
  </response>
</xml_schema>`

// PlanSchema is the example tree shown when asking for a new plan.
const PlanSchema = `<plan>
  <task id="root" description="Main project goal">
    <task id="task1" description="Component 1">
      <task id="task1.1" description="Subtask 1.1" status="pending" complexity="medium" depends_on="" progress="0"/>
      <task id="task1.2" description="Subtask 1.2" status="pending" complexity="low" depends_on="task1.1" progress="0"/>
    </task>
    <task id="task2" description="Component 2">
      <task id="task2.1" description="Subtask 2.1" status="pending" complexity="high" depends_on="task1.2" progress="0"/>
    </task>
  </task>
</plan>`

// SystemInfo is the host context attached to chat prompts.
type SystemInfo struct {
	Platform string
	Shell    string
	Now      time.Time
}

// CurrentSystemInfo describes the running host at now.
func CurrentSystemInfo(now time.Time) SystemInfo {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "sh"
	}
	return SystemInfo{
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Shell:    shell,
		Now:      now,
	}
}

// XML renders the info as a <system_info> block indented by indent.
func (s SystemInfo) XML(indent string) string {
	zone, _ := s.Now.Zone()
	lines := []string{
		"<system_info>",
		"  <date>" + s.Now.Format("2006-01-02") + "</date>",
		"  <time>" + s.Now.Format("15:04:05") + "</time>",
		"  <timezone>" + zone + "</timezone>",
	}
	if s.Platform != "" {
		lines = append(lines, "  <platform>"+s.Platform+"</platform>")
	}
	if s.Shell != "" {
		lines = append(lines, "  <shell>"+s.Shell+"</shell>")
	}
	lines = append(lines, "</system_info>")
	return indent + strings.Join(lines, "\n"+indent)
}

// ChatInput is everything a chat turn prompt is assembled from.
type ChatInput struct {
	// Message is the user turn, already wrapped in an element.
	Message string
	History string
	Memory  string
	System  SystemInfo
	// Plan is the current plan document, omitted when empty.
	Plan string
}

// ChatPrompt builds the prompt for one chat turn.
func ChatPrompt(in ChatInput) string {
	var b strings.Builder
	b.WriteString("<context>\n")
	b.WriteString(in.System.XML("  "))
	b.WriteString("\n  <conversation_history>\n")
	writeIndented(&b, in.History, "    ")
	b.WriteString("  </conversation_history>\n  <memory>\n")
	writeIndented(&b, in.Memory, "    ")
	b.WriteString("  </memory>\n")
	if strings.TrimSpace(in.Plan) != "" {
		b.WriteString("  <current_plan>\n")
		writeIndented(&b, in.Plan, "    ")
		b.WriteString("  </current_plan>\n")
	}
	writeIndented(&b, in.Message, "  ")
	b.WriteString("</context>\n\n")
	b.WriteString("You are an AI assistant that can respond to user queries and also perform actions.\n\n")
	b.WriteString(ResponseSchema)
	b.WriteString("\n\n")
	b.WriteString(`You must respond using the XML schema above. You can include multiple response types in a single reply.
For shell commands, set safe_to_autorun="true" only for commands that are completely safe and have no destructive potential.

When you need to update your persistent memory, use the memory_updates tag to edit or add information.

Use the execution_status tag to indicate if you've completed the task or need more input from the user.
`)
	return b.String()
}

// ContinuationPrompt feeds shell command results back to the model.
// contexts are serialized <execution_context> documents.
func ContinuationPrompt(previousMessage string, contexts []string, sys SystemInfo) string {
	var b strings.Builder
	b.WriteString("<context>\n")
	b.WriteString("  <previous_message>" + previousMessage + "</previous_message>\n")
	b.WriteString("  <command_results>\n")
	for _, c := range contexts {
		writeIndented(&b, c, "    ")
	}
	b.WriteString("  </command_results>\n")
	b.WriteString(sys.XML("  "))
	b.WriteString("\n</context>\n\n")
	b.WriteString(ResponseSchema)
	b.WriteString("\n\nYou are continuing a task based on the results of previous commands.\n\n")
	b.WriteString("Based on these results, please continue with the task. You must respond using the XML schema above.\n")
	return b.String()
}

// PlanPrompt asks for a hierarchical plan implementing spec.
func PlanPrompt(spec, repository string) string {
	return fmt.Sprintf(`Based on the following specification, create a hierarchical plan as an XML tree.

SPECIFICATION:
%s

REPOSITORY INFORMATION:
%s

Create a detailed plan with tasks and subtasks. The plan should be in XML format with the following structure:

%s

Each task should have:
- A unique id
- A clear description
- A status (pending, in-progress, completed, failed)
- A complexity estimate (low, medium, high)
- Dependencies (depends_on attribute with comma-separated task IDs)
- Progress indicator (0-100)
- Subtasks where appropriate

Think step by step about the dependencies between tasks and how to break down the problem effectively.
`, strings.TrimSpace(spec), repository, PlanSchema)
}

// TaskInput is the context for executing a single plan task.
type TaskInput struct {
	ID          string
	Description string
	// ParentID and ParentDescription are empty for a top-level task.
	ParentID          string
	ParentDescription string
	Repository        string
	Plan              string
}

// TaskPrompt asks for the actions implementing one task.
func TaskPrompt(in TaskInput) string {
	var b strings.Builder
	b.WriteString("I need to execute the following task:\n\n")
	fmt.Fprintf(&b, "TASK ID: %s\nDESCRIPTION: %s\n", in.ID, in.Description)
	if in.ParentID != "" {
		fmt.Fprintf(&b, "This task is part of: %s - %s\n", in.ParentID, in.ParentDescription)
	}
	b.WriteString("\nREPOSITORY INFORMATION:\n")
	b.WriteString(in.Repository)
	b.WriteString("\n\nCURRENT PLAN:\n")
	b.WriteString(in.Plan)
	b.WriteString("\n\nGenerate the necessary actions to complete this task inside an <actions> element. ")
	b.WriteString("If the plan itself needs to change, include a <plan_update> element as well.\n\n")
	b.WriteString(ResponseSchema)
	b.WriteString("\n\nThink step by step about what needs to be done to complete this task.\n")
	b.WriteString("Focus on creating actions that are specific, concrete, and directly implement the task.\n")
	return b.String()
}

func writeIndented(b *strings.Builder, text, indent string) {
	text = strings.Trim(text, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(indent + line + "\n")
	}
}
