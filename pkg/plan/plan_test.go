package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioPlan = `<plan><task id="root" description="Root"><task id="t1" description="A" status="pending" depends_on="" progress="0"/><task id="t2" description="B" status="pending" depends_on="t1" progress="0"/></task></plan>`

const deepPlan = `<plan>
  <task id="root" description="Main goal">
    <task id="c1" description="Component">
      <task id="c1.1" description="Sub" status="pending">
        <task id="leaf" description="Deep leaf" status="completed" complexity="high" depends_on="" progress="100" owner="sam"/>
      </task>
    </task>
  </task>
</plan>`

func mustParse(t *testing.T, xml string) *Tree {
	t.Helper()
	tree, err := Parse(xml)
	require.NoError(t, err)
	return tree
}

func TestParseAndSerialize(t *testing.T) {
	tree := mustParse(t, deepPlan)
	assert.Equal(t, 4, tree.Count())

	leaf := tree.FindTask("leaf")
	require.NotNil(t, leaf)
	assert.Equal(t, "Deep leaf", leaf.Description)
	assert.Equal(t, StatusCompleted, leaf.Status)
	assert.Equal(t, ComplexityHigh, leaf.Complexity)
	assert.Equal(t, 100, leaf.ProgressValue())
	assert.Equal(t, []Attr{{Key: "owner", Value: "sam"}}, leaf.Extra)
	assert.Equal(t, "c1.1", leaf.Parent().ID)

	out := tree.String()
	assert.Contains(t, out, `<task id="leaf" description="Deep leaf" status="completed" complexity="high" depends_on="" progress="100" owner="sam"></task>`)

	again := mustParse(t, out)
	assert.Equal(t, out, again.String())
}

func TestParseWrappedAndInvalid(t *testing.T) {
	tree := mustParse(t, "<agent-response>\n  "+scenarioPlan+"\n</agent-response>")
	assert.NotNil(t, tree.FindTask("t2"))

	_, err := Parse("no plan here")
	assert.ErrorIs(t, err, ErrNoPlanElement)

	_, err = Parse("<plan><task id='a'></plan>")
	assert.Error(t, err)

	empty := mustParse(t, "<plan/>")
	assert.Equal(t, 0, empty.Count())
}

func TestFindTaskAtAnyDepth(t *testing.T) {
	tree := mustParse(t, deepPlan)
	for _, id := range []string{"root", "c1", "c1.1", "leaf"} {
		found := tree.FindTask(id)
		require.NotNil(t, found, id)
		assert.Equal(t, id, found.ID)
	}
	assert.Nil(t, tree.FindTask("missing"))
	assert.Equal(t, "c1", tree.Parent("c1.1").ID)
	assert.Nil(t, tree.Parent("root"))
}

func TestDependencyScenario(t *testing.T) {
	tree := mustParse(t, scenarioPlan)

	ok, problems := tree.CheckDependencies("t2")
	assert.False(t, ok)
	assert.Equal(t, []string{"Dependency t1 (A) is not completed (status: pending)"}, problems)

	n, err := tree.UpdateTask("t1", StatusCompleted, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, problems = tree.CheckDependencies("t2")
	assert.True(t, ok)
	assert.Empty(t, problems)
}

func TestCheckDependencies(t *testing.T) {
	tree := mustParse(t, `<plan><task id="root">
		<task id="a" description="A" status="pending" depends_on="b"/>
		<task id="b" description="B" status="completed" depends_on="a"/>
		<task id="c" description="C" depends_on="ghost, b"/>
		<task id="d" description="D"/>
	</task></plan>`)

	t.Run("missing task", func(t *testing.T) {
		ok, problems := tree.CheckDependencies("zzz")
		assert.False(t, ok)
		assert.Equal(t, []string{"Task zzz not found"}, problems)
	})

	t.Run("no dependencies", func(t *testing.T) {
		ok, problems := tree.CheckDependencies("d")
		assert.True(t, ok)
		assert.Empty(t, problems)
	})

	t.Run("unresolvable dependency", func(t *testing.T) {
		ok, problems := tree.CheckDependencies("c")
		assert.False(t, ok)
		assert.Equal(t, []string{"Dependency ghost not found"}, problems)
	})

	t.Run("cycle is checked one level deep", func(t *testing.T) {
		ok, _ := tree.CheckDependencies("a")
		assert.True(t, ok, "b is completed")
		ok, problems := tree.CheckDependencies("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"Dependency a (A) is not completed (status: pending)"}, problems)
	})
}

func TestUpdateTask(t *testing.T) {
	t.Run("progress validation", func(t *testing.T) {
		tests := []struct {
			progress string
			want     int
		}{
			{"50", 50},
			{"0", 0},
			{"100", 100},
			{"150", 10},
			{"-1", 10},
			{"abc", 10},
			{"", 10},
			{"99999999999999999999", 10},
		}
		for _, tt := range tests {
			tree := mustParse(t, `<plan><task id="a" status="pending" progress="10"/></plan>`)
			_, err := tree.UpdateTask("a", StatusInProgress, "", tt.progress)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tree.FindTask("a").ProgressValue(), "progress %q", tt.progress)
			assert.Equal(t, StatusInProgress, tree.FindTask("a").Status)
		}
	})

	t.Run("notes only when provided", func(t *testing.T) {
		tree := mustParse(t, `<plan><task id="a" notes="keep"/></plan>`)
		_, err := tree.UpdateTask("a", StatusFailed, "", "")
		require.NoError(t, err)
		assert.Equal(t, "keep", tree.FindTask("a").Notes)

		_, err = tree.UpdateTask("a", StatusFailed, "boom", "")
		require.NoError(t, err)
		assert.Equal(t, "boom", tree.FindTask("a").Notes)
	})

	t.Run("updates every duplicate", func(t *testing.T) {
		tree := mustParse(t, `<plan><task id="r"><task id="x"/><task id="y"><task id="x"/></task></task></plan>`)
		n, err := tree.UpdateTask("x", StatusCompleted, "", "100")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		for _, task := range tree.FindAll("x") {
			assert.Equal(t, StatusCompleted, task.Status)
			assert.Equal(t, 100, task.ProgressValue())
		}
	})

	t.Run("not found", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		n, err := tree.UpdateTask("nope", StatusCompleted, "", "")
		assert.ErrorIs(t, err, ErrTaskNotFound)
		assert.Zero(t, n)
	})
}

func TestRefreshReady(t *testing.T) {
	tree := mustParse(t, `<plan><task id="root">
		<task id="a" status="completed"/>
		<task id="b" status="pending"/>
		<task id="c" status="pending" depends_on="a"/>
		<task id="d" status="pending" depends_on="a,b"/>
		<task id="e" status="failed" depends_on="a"/>
	</task></plan>`)

	promoted := tree.RefreshReady("a")
	assert.Equal(t, []string{"c"}, promoted)
	assert.Equal(t, StatusReady, tree.FindTask("c").Status)
	assert.Equal(t, StatusPending, tree.FindTask("d").Status)
	assert.Equal(t, StatusFailed, tree.FindTask("e").Status)

	_, err := tree.UpdateTask("b", StatusCompleted, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, tree.RefreshReady("b"))
}

func TestNextReady(t *testing.T) {
	tree := mustParse(t, scenarioPlan)
	assert.Equal(t, "t1", tree.NextReady().ID)

	_, err := tree.UpdateTask("t1", StatusCompleted, "", "100")
	require.NoError(t, err)
	assert.Equal(t, "t2", tree.NextReady().ID)

	_, err = tree.UpdateTask("t2", StatusCompleted, "", "100")
	require.NoError(t, err)
	assert.Nil(t, tree.NextReady())
}

func TestValidate(t *testing.T) {
	tree := mustParse(t, `<plan><task id="a" depends_on="ghost"/><task id="b"><task id="a"/></task></plan>`)
	problems := tree.Validate()
	assert.Contains(t, problems, "plan has 2 top-level tasks, expected 1")
	assert.Contains(t, problems, "task id a appears 2 times")
	assert.Contains(t, problems, "task a depends on unknown task ghost")

	assert.Empty(t, mustParse(t, scenarioPlan).Validate())
}

func TestSummary(t *testing.T) {
	tree := mustParse(t, `<plan><task id="r"><task id="a" status="completed"/><task id="b" status="in-progress" progress="50"/><task id="c"/></task></plan>`)
	s := tree.Summary()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.ByStatus[StatusCompleted])
	assert.Equal(t, 1, s.ByStatus[StatusInProgress])
	assert.Equal(t, 2, s.ByStatus[StatusPending])
	assert.Equal(t, 50, s.Percent)
}

func TestApplyPatch(t *testing.T) {
	t.Run("add modify remove", func(t *testing.T) {
		tree := mustParse(t, `<plan><task id="root" description="Root"><task id="task1" description="One"/><task id="task2" description="Two"/><task id="task3" description="Three"/></task></plan>`)
		log, err := tree.ApplyPatch(`<plan_update>
			<add_task parent_id="task1" id="task1.3" description="New subtask" status="pending" complexity="medium" depends_on="" progress="0" />
			<modify_task id="task2" description="Updated description" />
			<modify_task id="task1" status="completed" />
			<remove_task id="task3" />
		</plan_update>`)
		require.NoError(t, err)
		assert.Equal(t, ChangeLog{
			"Added new task task1.3: New subtask",
			"Modified task task2: Two -> Updated description",
			"Updated attributes for task task1",
			"Removed task task3: Three",
		}, log)

		added := tree.FindTask("task1.3")
		require.NotNil(t, added)
		assert.Equal(t, "task1", added.Parent().ID)
		assert.Empty(t, added.Extra, "parent_id must not be copied")
		assert.Equal(t, StatusCompleted, tree.FindTask("task1").Status)
		assert.Nil(t, tree.FindTask("task3"))
		assert.NotContains(t, tree.String(), "parent_id")
	})

	t.Run("missing parent leaves tree unchanged", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		before := tree.String()
		log, err := tree.ApplyPatch(`<plan_update><add_task parent_id="nope" id="x" description="X"/></plan_update>`)
		require.NoError(t, err)
		assert.Empty(t, log)
		assert.Equal(t, 3, tree.Count())
		assert.Equal(t, before, tree.String())
	})

	t.Run("duplicate id is not added", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		log, err := tree.ApplyPatch(`<plan_update><add_task parent_id="root" id="t1" description="dup"/></plan_update>`)
		require.NoError(t, err)
		assert.Empty(t, log)
		assert.Len(t, tree.FindAll("t1"), 1)
	})

	t.Run("missing targets are ignored", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		log, err := tree.ApplyPatch(`<plan_updates><modify_task id="nope" status="failed"/><remove_task id="nope"/><remove_task/></plan_updates>`)
		require.NoError(t, err)
		assert.Empty(t, log)
		assert.Equal(t, 3, tree.Count())
	})

	t.Run("remove top level task", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		log, err := tree.ApplyPatch(`<plan_update><remove_task id="root"/></plan_update>`)
		require.NoError(t, err)
		assert.Equal(t, ChangeLog{"Removed task root: Root"}, log)
		assert.Equal(t, 0, tree.Count())
	})

	t.Run("patch embedded in a response", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		log, err := tree.ApplyPatch("Sure.\n<plan_update><modify_task id=\"t2\" progress=\"40\"/></plan_update>\nDone")
		require.NoError(t, err)
		assert.Len(t, log, 1)
		assert.Equal(t, 40, tree.FindTask("t2").ProgressValue())
	})

	t.Run("unparsable patch", func(t *testing.T) {
		tree := mustParse(t, scenarioPlan)
		_, err := tree.ApplyPatch("<plan_update><add_task></plan_update>")
		assert.Error(t, err)
	})
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "nested", "agent_plan.xml"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoPlan)
	assert.False(t, store.Exists())

	require.NoError(t, store.Save(mustParse(t, scenarioPlan)))
	assert.True(t, store.Exists())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<agent-response>"))

	tree, err := store.Update(func(tr *Tree) error {
		_, err := tr.UpdateTask("t1", StatusCompleted, "", "100")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tree.FindTask("t1").Status)

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, reloaded.FindTask("t1").Status)
	assert.Equal(t, tree.String(), reloaded.String())

	_, err = store.Update(func(tr *Tree) error {
		_, err := tr.UpdateTask("ghost", StatusCompleted, "", "")
		return err
	})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	require.NoError(t, store.Clear())
	cleared, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cleared.Count())
}

func TestStoreMalformedFileFallsBack(t *testing.T) {
	t.Setenv("XMLAGENT_LOG_FILE", filepath.Join(t.TempDir(), "log"))
	path := filepath.Join(t.TempDir(), "agent_plan.xml")
	require.NoError(t, os.WriteFile(path, []byte("<plan><task></plan>"), 0644))

	tree, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 0, tree.Count())
}
