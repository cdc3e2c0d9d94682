package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alantheprice/xmlagent/pkg/events"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/workspace"
)

const fixturePlan = `<plan>
  <task id="root" description="Root">
    <task id="t1" description="A" status="pending" depends_on="" progress="0"/>
    <task id="t2" description="B" status="pending" depends_on="t1" progress="0"/>
    <task id="done" description="Done already" status="completed" progress="100"/>
  </task>
</plan>`

func TestMain(m *testing.M) {
	os.Setenv("XMLAGENT_LOG_FILE", filepath.Join(os.TempDir(), "xmlagent-orchestration-test.log"))
	os.Exit(m.Run())
}

type lines []string

func (l *lines) Info(msg string) { *l = append(*l, msg) }

func setup(t *testing.T, responses ...string) (*Orchestrator, *llm.StubClient, *lines) {
	t.Helper()
	store := plan.NewStore(filepath.Join(t.TempDir(), "agent_plan.xml"))
	tree, err := plan.Parse(fixturePlan)
	require.NoError(t, err)
	require.NoError(t, store.Save(tree))

	stub := llm.NewStubClient(responses...)
	o := New(stub, "test-model", store)
	o.Snapshot = func(ctx context.Context, root string) (*workspace.Snapshot, error) {
		return &workspace.Snapshot{Files: []string{"main.go"}, GitInfo: workspace.GitInfo{CurrentBranch: "main"}}, nil
	}
	reported := &lines{}
	o.Reporter = reported
	return o, stub, reported
}

func loadTask(t *testing.T, o *Orchestrator, id string) *plan.Task {
	t.Helper()
	tree, err := o.Plans.Load()
	require.NoError(t, err)
	return tree.FindTask(id)
}

func TestExecuteTaskNotFound(t *testing.T) {
	o, stub, _ := setup(t)
	r, err := o.ExecuteTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, "Task missing not found", r.Message)
	assert.Empty(t, stub.Prompts)
}

func TestExecuteTaskAlreadyCompleted(t *testing.T) {
	o, stub, _ := setup(t)
	r, err := o.ExecuteTask(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, KindWarning, r.Kind)
	assert.Equal(t, "Task done is already marked as completed", r.Message)
	assert.Equal(t, plan.StatusCompleted, r.Status)
	assert.Empty(t, stub.Prompts)
}

func TestExecuteTaskUnmetDependencies(t *testing.T) {
	o, stub, _ := setup(t)
	before, err := os.ReadFile(o.Plans.Path())
	require.NoError(t, err)

	r, err := o.ExecuteTask(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, "Dependencies not met", r.Message)
	assert.Equal(t, []string{"Dependency t1 (A) is not completed (status: pending)"}, r.MissingDependencies)
	assert.Contains(t, r.XML(), "<dependency>Dependency t1 (A) is not completed (status: pending)</dependency>")
	assert.Empty(t, stub.Prompts)

	after, err := os.ReadFile(o.Plans.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestExecuteTaskSuccess(t *testing.T) {
	response := `Sure.
<response>
  <actions>
    <action type="create_file" path="a.txt">hello</action>
  </actions>
  <plan_update>
    <add_task parent_id="root" id="t3" description="C" status="pending"/>
  </plan_update>
</response>`
	o, stub, reported := setup(t, response)

	r, err := o.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, KindOK, r.Kind, r.Message)
	assert.Equal(t, ProgressReady, r.Progress)
	assert.Equal(t, plan.StatusInProgress, r.Status)
	assert.Contains(t, r.Actions, `<action type="create_file" path="a.txt">hello</action>`)
	assert.Contains(t, r.PlanUpdate, `id="t3"`)

	task := loadTask(t, o, "t1")
	assert.Equal(t, plan.StatusInProgress, task.Status)
	assert.Equal(t, ProgressReady, task.ProgressValue())
	assert.NotNil(t, loadTask(t, o, "t3"))

	prompt := stub.LastPrompt()
	assert.Contains(t, prompt, "TASK ID: t1\nDESCRIPTION: A\nThis task is part of: root - Root")
	assert.Contains(t, prompt, `"current_branch": "main"`)
	assert.Contains(t, prompt, `status="in-progress"`)

	assert.Equal(t, lines{
		"Executing task t1: A",
		"Status updated to: in-progress (10%)",
		"Progress updated to: 30% (planning phase)",
		"Progress updated to: 50% (actions generated)",
		"Progress updated to: 70% (ready for execution)",
	}, *reported)

	xml := r.XML()
	assert.Contains(t, xml, "<status>Actions generated for task t1</status>")
	assert.Contains(t, xml, `<task id="t1" description="A" status="in-progress" progress="70"></task>`)
}

func TestExecuteTaskPublishesProgress(t *testing.T) {
	o, _, _ := setup(t, `<response><actions><action type="create_file" path="a.txt">x</action></actions></response>`)
	o.Events = events.NewEventBus()
	ch := o.Events.Subscribe("test")

	_, err := o.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)

	var progress []any
	for len(ch) > 0 {
		ev := <-ch
		assert.Equal(t, events.EventTypeTaskProgress, ev.Type)
		data := ev.Data.(map[string]any)
		assert.Equal(t, "t1", data["task_id"])
		progress = append(progress, data["progress"])
	}
	assert.Equal(t, []any{ProgressStarted, ProgressPlanning, ProgressGenerated, ProgressReady}, progress)
}

func TestExecuteTaskWithoutActionsFails(t *testing.T) {
	response := `<response>
  <message>I am not sure.</message>
  <plan_update><modify_task id="t2" description="B revised"/></plan_update>
</response>`
	o, _, _ := setup(t, response)

	r, err := o.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, "Failed to generate actions for task", r.Message)
	assert.Equal(t, plan.StatusFailed, r.Status)

	task := loadTask(t, o, "t1")
	assert.Equal(t, plan.StatusFailed, task.Status)
	assert.Equal(t, "Failed to generate actions", task.Notes)
	assert.Equal(t, 0, task.ProgressValue())
	// The plan update still applies.
	assert.Equal(t, "B revised", loadTask(t, o, "t2").Description)
}

func TestExecuteTaskModelError(t *testing.T) {
	o, stub, _ := setup(t)
	stub.Err = errors.New("dial tcp: connection refused")

	r, err := o.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, "Error executing task: Error: Connection failed. Please check your internet connection.", r.Message)
	assert.Equal(t, ProgressPlanning, loadTask(t, o, "t1").ProgressValue())
}

func TestExecuteTaskNoPlan(t *testing.T) {
	o := New(llm.NewStubClient(), "m", plan.NewStore(filepath.Join(t.TempDir(), "none.xml")))
	r, err := o.ExecuteTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "No plan exists", r.Message)
}

func TestExecuteTaskWriteFailure(t *testing.T) {
	o, _, _ := setup(t)
	dir := filepath.Dir(o.Plans.Path())
	require.NoError(t, os.Chmod(o.Plans.Path(), 0444))
	t.Cleanup(func() { os.Chmod(o.Plans.Path(), 0644) })
	if f, err := os.OpenFile(o.Plans.Path(), os.O_WRONLY, 0); err == nil {
		f.Close()
		t.Skipf("running with write access to read-only files in %s", dir)
	}

	r, err := o.ExecuteTask(context.Background(), "t1")
	require.Error(t, err)
	var writeErr *plan.WriteError
	assert.ErrorAs(t, err, &writeErr)
	assert.Equal(t, KindError, r.Kind)
}

func TestCompleteTaskPromotesDependents(t *testing.T) {
	o, _, reported := setup(t)
	r, err := o.CompleteTask("t1")
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Equal(t, "Task t1 marked as completed", r.Message)
	assert.Equal(t, []string{"Now ready: t2"}, r.Changes)
	assert.Equal(t, lines{"Task t1 marked as completed", "Now ready: t2"}, *reported)

	assert.Equal(t, 100, loadTask(t, o, "t1").ProgressValue())
	assert.Equal(t, plan.StatusReady, loadTask(t, o, "t2").Status)

	r, err = o.CompleteTask("nope")
	require.NoError(t, err)
	assert.Equal(t, "Task nope not found", r.Message)
}

func TestUpdateTaskIgnoresOutOfRangeProgress(t *testing.T) {
	o, _, _ := setup(t)
	r, err := o.UpdateTask("t1", plan.StatusInProgress, "halfway", "150")
	require.NoError(t, err)
	assert.Equal(t, "Updated task t1 to in-progress", r.Message)
	task := loadTask(t, o, "t1")
	assert.Equal(t, 0, task.ProgressValue())
	assert.Equal(t, "halfway", task.Notes)
}

func TestApplyPlanUpdate(t *testing.T) {
	o, _, _ := setup(t)
	r, err := o.ApplyPlanUpdate(`<plan_update><remove_task id="t2"/><add_task parent_id="nowhere" id="x" description="X"/></plan_update>`)
	require.NoError(t, err)
	assert.Equal(t, "Applied 1 plan change", r.Message)
	assert.Equal(t, []string{"Removed task t2: B"}, r.Changes)
	assert.Nil(t, loadTask(t, o, "t2"))

	r, err = o.ApplyPlanUpdate("<plan_update><broken>")
	require.NoError(t, err)
	assert.Equal(t, KindError, r.Kind)
}

func TestGeneratePlan(t *testing.T) {
	response := `Here is the plan:
<plan>
  <task id="root" description="CLI">
    <task id="task1" description="Parse flags" status="pending" complexity="low" depends_on="" progress="0"/>
  </task>
</plan>`
	o, stub, _ := setup(t, response, "no plan here")

	r, err := o.GeneratePlan(context.Background(), "Build a CLI")
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Equal(t, "Plan generated with 2 tasks", r.Message)
	assert.Contains(t, stub.LastPrompt(), "SPECIFICATION:\nBuild a CLI")
	assert.Contains(t, stub.LastPrompt(), `"main.go"`)
	assert.NotNil(t, loadTask(t, o, "task1"))
	assert.Contains(t, r.XML(), `<task id="task1"`)

	r, err = o.GeneratePlan(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "Failed to generate plan", r.Message)
	assert.NotNil(t, loadTask(t, o, "task1"))
}
