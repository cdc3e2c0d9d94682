package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
	"github.com/alantheprice/xmlagent/pkg/configuration"
	"github.com/alantheprice/xmlagent/pkg/history"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/prompts"
	"github.com/alantheprice/xmlagent/pkg/workspace"
)

func TestMain(m *testing.M) {
	os.Setenv("XMLAGENT_LOG_FILE", filepath.Join(os.TempDir(), "xmlagent-session-test.log"))
	os.Exit(m.Run())
}

type recordingConsole struct {
	lines     []string
	out       bytes.Buffer
	reasoning strings.Builder
}

func (c *recordingConsole) Info(msg string)    { c.lines = append(c.lines, "info: "+msg) }
func (c *recordingConsole) Success(msg string) { c.lines = append(c.lines, "ok: "+msg) }
func (c *recordingConsole) Warn(msg string)    { c.lines = append(c.lines, "warn: "+msg) }
func (c *recordingConsole) Error(msg string)   { c.lines = append(c.lines, "error: "+msg) }
func (c *recordingConsole) Preview(title, body string) {
	c.lines = append(c.lines, "preview: "+title)
}
func (c *recordingConsole) Writer() io.Writer         { return &c.out }
func (c *recordingConsole) Print(s string)            { c.lines = append(c.lines, "print: "+s) }
func (c *recordingConsole) Reasoning(fragment string) { c.reasoning.WriteString(fragment) }
func (c *recordingConsole) Answer(fragment string)    { c.out.WriteString(fragment) }

func (c *recordingConsole) has(substr string) bool {
	for _, l := range c.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

type scriptedConfirmer struct {
	answers []bool
	prompts []string
}

func (s *scriptedConfirmer) Confirm(prompt string, defaultYes bool) bool {
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return defaultYes
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a
}

type fixture struct {
	dir       string
	session   *Session
	stub      *llm.StubClient
	console   *recordingConsole
	confirmer *scriptedConfirmer
}

func newFixture(t *testing.T, responses ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := configuration.NewConfig()
	cfg.Model = "stub-model"
	cfg.Stream = false
	cfg.Paths = configuration.PathsConfig{
		Plan:    filepath.Join(dir, "agent_plan.xml"),
		Memory:  filepath.Join(dir, "agent_memory.xml"),
		History: filepath.Join(dir, "chat_history.json"),
	}

	f := &fixture{
		dir:       dir,
		stub:      llm.NewStubClient(responses...),
		console:   &recordingConsole{},
		confirmer: &scriptedConfirmer{},
	}
	s := New(cfg, f.stub, f.console, f.confirmer)
	s.ReasoningFile = filepath.Join(dir, ".xmlagent", "last_reasoning.txt")
	s.SystemInfo = func() prompts.SystemInfo {
		return prompts.SystemInfo{Platform: "test", Shell: "/bin/sh", Now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	}
	s.Orchestrator.Snapshot = func(ctx context.Context, root string) (*workspace.Snapshot, error) {
		return &workspace.Snapshot{GitInfo: workspace.GitInfo{CurrentBranch: "unknown"}}, nil
	}
	s.Dispatcher.Runner = &tools.Runner{Shell: "/bin/sh", Dir: dir}
	f.session = s
	return f
}

func (f *fixture) savePlan(t *testing.T, doc string) {
	t.Helper()
	tree, err := plan.Parse(doc)
	require.NoError(t, err)
	require.NoError(t, f.session.Plans.Save(tree))
}

func (f *fixture) task(t *testing.T, id string) *plan.Task {
	t.Helper()
	tree, err := f.session.Plans.Load()
	require.NoError(t, err)
	return tree.FindTask(id)
}

func TestWrapUserMessage(t *testing.T) {
	assert.Equal(t, "<user_message>fix a &amp; b</user_message>", WrapUserMessage("  fix a & b "))
	assert.Equal(t, "<input><message>hi</message></input>", WrapUserMessage("<input><message>hi</message></input>"))
	assert.Equal(t, "<user_message>&lt;3 thanks</user_message>", WrapUserMessage("<3 thanks"))
	assert.Equal(t, "<user_message>&lt;b&gt;bold&lt;/b&gt; and more</user_message>", WrapUserMessage("<b>bold</b> and more"))
}

func TestExtractSections(t *testing.T) {
	response := `Thinking out loud.
<response>
  <message>Hello</message>
  <actions><action type="run_command" command="ls"/></actions>
  <memory_updates><append>x</append></memory_updates>
  <plan_update><remove_task id="a"/></plan_update>
  <execution_status complete="true" needs_user_input="false"><message>All done</message></execution_status>
</response>`
	sec := ExtractSections(response)
	assert.Equal(t, "<message>Hello</message>", sec.Message)
	assert.Equal(t, "Hello", sec.MessageText())
	assert.Equal(t, `<plan_update><remove_task id="a"/></plan_update>`, sec.PlanUpdates[0])
	assert.Equal(t, "<message>Hello</message>\n"+
		`<actions><action type="run_command" command="ls"/></actions>`+"\n"+
		`<execution_status complete="true" needs_user_input="false"><message>All done</message></execution_status>`+"\n",
		sec.HistoryContent(response))

	st, err := ParseExecutionStatus(sec.ExecutionStatus)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatus{Complete: true, Message: "All done"}, st)

	plain := ExtractSections("just text")
	assert.Equal(t, "just text", plain.HistoryContent("just text"))
	assert.Empty(t, plain.MessageText())
}

func TestChatRecordsHistoryAndMemory(t *testing.T) {
	f := newFixture(t, `<response><message>Noted.</message><memory_updates><append>likes tea</append></memory_updates></response>`)

	turn, err := f.session.Chat(context.Background(), "I like tea")
	require.NoError(t, err)
	require.Len(t, turn.Steps, 1)
	assert.True(t, turn.Last().Memory)

	entries, err := f.session.History.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.RoleUser, entries[0].Role)
	assert.Equal(t, "<user_message>I like tea</user_message>", entries[0].Content)
	assert.Equal(t, history.RoleAssistant, entries[1].Role)
	assert.Equal(t, "<message>Noted.</message>\n", entries[1].Content)

	mem, err := f.session.Memory.Load()
	require.NoError(t, err)
	assert.Contains(t, mem, "likes tea")

	prompt := f.stub.LastPrompt()
	assert.Contains(t, prompt, "<user_message>I like tea</user_message>")
	assert.Contains(t, prompt, "<conversation_history>")
	assert.Contains(t, prompt, "<date>2024-01-02</date>")
	assert.True(t, f.console.has("print: \nNoted.\n"))
}

func TestChatRunsActionsAndEdits(t *testing.T) {
	target := filepath.Join(t.TempDir(), "hello.txt")
	response := fmt.Sprintf(`<response>
  <actions><action type="create_file" path="%[1]s">hi there</action></actions>
  <file_edits><edit path="%[1]s"><search>hi</search><replace>hello</replace></edit></file_edits>
</response>`, target)
	f := newFixture(t, response)

	turn, err := f.session.Chat(context.Background(), "make a file")
	require.NoError(t, err)
	step := turn.Last()
	require.Len(t, step.Actions, 1)
	assert.True(t, step.Actions[0].Done)
	require.Len(t, step.FileEdits, 1)
	assert.True(t, step.FileEdits[0].Done)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))
	assert.Equal(t, []string{"Execute this action?", "Apply this edit?"}, f.confirmer.prompts)
}

func TestContinuationFeedsResultsBack(t *testing.T) {
	f := newFixture(t,
		`<response><message>Checking.</message><shell_commands><command safe_to_autorun="true">pwd</command></shell_commands></response>`,
		`<response><message>Done.</message></response>`,
	)

	turn, err := f.session.Chat(context.Background(), "where am I?")
	require.NoError(t, err)
	assert.Equal(t, 1, turn.Continuations)
	require.Len(t, turn.Steps, 2)
	require.Len(t, turn.Steps[0].Commands, 1)
	assert.True(t, turn.Steps[0].Commands[0].Success)
	assert.Empty(t, f.confirmer.prompts)

	require.Len(t, f.stub.Prompts, 2)
	prompt := f.stub.LastPrompt()
	assert.Contains(t, prompt, "<previous_message>Checking.</previous_message>")
	assert.Contains(t, prompt, "<command>pwd</command>")
	assert.Contains(t, prompt, "<success>true</success>")
	assert.True(t, f.console.has("Continuing execution with command results"))

	entries, err := f.session.History.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestContinuationIsBounded(t *testing.T) {
	cmd := `<response><shell_commands><command safe_to_autorun="true">pwd</command></shell_commands></response>`
	f := newFixture(t, cmd, cmd, cmd, cmd)
	f.session.MaxContinuations = 2

	turn, err := f.session.Chat(context.Background(), "loop")
	require.NoError(t, err)
	assert.Equal(t, 2, turn.Continuations)
	assert.Len(t, turn.Steps, 3)
	assert.Len(t, f.stub.Prompts, 3)
	assert.True(t, f.console.has("warn: Stopped after 2 continuations"))
}

func TestFailedCommandAsksBeforeContinuing(t *testing.T) {
	f := newFixture(t, `<response><shell_commands><command safe_to_autorun="false">exit 3</command></shell_commands></response>`)
	f.confirmer.answers = []bool{true, false}

	turn, err := f.session.Chat(context.Background(), "fail please")
	require.NoError(t, err)
	assert.Equal(t, 0, turn.Continuations)
	ec := turn.Last().Commands[0]
	assert.False(t, ec.Success)
	require.NotNil(t, ec.ReturnCode)
	assert.Equal(t, 3, *ec.ReturnCode)
	assert.Equal(t, []string{"Execute this shell command?", "No commands succeeded. Continue with model execution?"}, f.confirmer.prompts)
	assert.Len(t, f.stub.Prompts, 1)
}

func TestBadSectionDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, `<response>
  <actions><action type="create_file" path="x"></actions>
  <plan_update><modify_task id="t1" description="Renamed"/></plan_update>
  <execution_status complete="false" needs_user_input="true"><message>Which file?</message></execution_status>
</response>`)
	f.savePlan(t, `<plan><task id="root" description="Root"><task id="t1" description="A"/></task></plan>`)

	turn, err := f.session.Chat(context.Background(), "go")
	require.NoError(t, err)
	step := turn.Last()
	assert.Equal(t, []string{"actions"}, step.Errors)
	assert.Equal(t, "Renamed", f.task(t, "t1").Description)
	require.NotNil(t, step.Status)
	assert.True(t, step.Status.NeedsUserInput)
	assert.True(t, f.console.has("error: Error parsing actions XML"))
	assert.True(t, f.console.has("warn: Which file?"))
	assert.Contains(t, f.stub.LastPrompt(), "<current_plan>")
}

func TestChatModelError(t *testing.T) {
	f := newFixture(t)
	f.stub.Err = errors.New("429 Too Many Requests: rate limit reached")

	turn, err := f.session.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, turn.Steps)
	assert.True(t, f.console.has("error: Error: Rate limit exceeded. Please try again later."))

	entries, err := f.session.History.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReasoningIsSaved(t *testing.T) {
	f := newFixture(t, `<response><message>ok</message></response>`)
	f.session.Stream = true
	f.stub.Reasoning = "let me think"

	_, err := f.session.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "let me think", f.console.reasoning.String())
	assert.Contains(t, f.console.out.String(), "<message>ok</message>")

	data, err := os.ReadFile(f.session.ReasoningFile)
	require.NoError(t, err)
	assert.Equal(t, "let me think", string(data))
}

func TestExecuteTaskRunsActionsAndCompletes(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.txt")
	f := newFixture(t, fmt.Sprintf(`<actions><action type="create_file" path="%s">x</action></actions>`, target))
	f.savePlan(t, `<plan><task id="root" description="Root"><task id="t1" description="Write out" status="ready"/><task id="t2" description="Next" status="pending" depends_on="t1"/></task></plan>`)

	r, outcomes, err := f.session.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Done)
	assert.Equal(t, "Task t1 marked as completed", r.Message)
	assert.Equal(t, []string{"Execute this action?", "Mark task t1 as completed?"}, f.confirmer.prompts)

	assert.Equal(t, plan.StatusCompleted, f.task(t, "t1").Status)
	assert.Equal(t, plan.StatusReady, f.task(t, "t2").Status)
	assert.FileExists(t, target)
}

func TestExecuteTaskDeclinedActionLeavesTaskOpen(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.txt")
	f := newFixture(t, fmt.Sprintf(`<actions><action type="create_file" path="%s">x</action></actions>`, target))
	f.savePlan(t, `<plan><task id="root" description="Root"><task id="t1" description="Write out"/></task></plan>`)
	f.confirmer.answers = []bool{false}

	r, outcomes, err := f.session.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, 70, r.Progress)
	assert.Equal(t, plan.StatusInProgress, f.task(t, "t1").Status)
	assert.NoFileExists(t, target)
}
