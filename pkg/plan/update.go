package plan

import (
	"fmt"
	"sort"
	"strconv"
)

// UpdateTask sets the status of every task matching id. Notes are applied
// when non-empty. Progress is applied only when it is an integer string in
// [0,100]; anything else is ignored rather than clamped. Ids are expected to
// be unique, but a duplicated id updates all of its nodes and the returned
// count says how many were touched.
func (tr *Tree) UpdateTask(id string, status Status, notes, progress string) (int, error) {
	matches := tr.FindAll(id)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	p, progressOK := parseProgress(progress)
	for _, t := range matches {
		t.Status = status
		if notes != "" {
			t.Notes = notes
		}
		if progressOK {
			t.SetProgress(p)
		}
	}
	return len(matches), nil
}

func parseProgress(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	p, err := strconv.Atoi(s)
	if err != nil || p > 100 {
		return 0, false
	}
	return p, true
}

// CheckDependencies reports whether every direct dependency of id is
// completed. Only one level is inspected, so dependency cycles terminate.
func (tr *Tree) CheckDependencies(id string) (bool, []string) {
	t := tr.FindTask(id)
	if t == nil {
		return false, []string{fmt.Sprintf("Task %s not found", id)}
	}
	var problems []string
	for _, depID := range t.DependsOn {
		dep := tr.FindTask(depID)
		switch {
		case dep == nil:
			problems = append(problems, fmt.Sprintf("Dependency %s not found", depID))
		case dep.Status != StatusCompleted:
			problems = append(problems, fmt.Sprintf("Dependency %s (%s) is not completed (status: %s)", depID, dep.Description, dep.Status))
		}
	}
	return len(problems) == 0, problems
}

// RefreshReady marks pending tasks that depend on completedID as ready once
// all of their dependencies are completed. It returns the ids promoted.
func (tr *Tree) RefreshReady(completedID string) []string {
	var promoted []string
	tr.Walk(func(t *Task) bool {
		if !contains(t.DependsOn, completedID) {
			return true
		}
		status := t.Status
		if status == "" {
			status = StatusPending
		}
		if status != StatusPending {
			return true
		}
		if ok, _ := tr.CheckDependencies(t.ID); ok {
			t.Status = StatusReady
			promoted = append(promoted, t.ID)
		}
		return true
	})
	return promoted
}

// NextReady returns the first task in document order that is pending or
// ready, has no children and has all dependencies completed.
func (tr *Tree) NextReady() *Task {
	var next *Task
	tr.Walk(func(t *Task) bool {
		if len(t.Children) > 0 {
			return true
		}
		if t.Status != StatusPending && t.Status != StatusReady && t.Status != "" {
			return true
		}
		if ok, _ := tr.CheckDependencies(t.ID); ok {
			next = t
			return false
		}
		return true
	})
	return next
}

// Validate reports structural problems: duplicate ids, dependencies that do
// not resolve and more than one top-level task.
func (tr *Tree) Validate() []string {
	var problems []string
	if len(tr.Tasks) > 1 {
		problems = append(problems, fmt.Sprintf("plan has %d top-level tasks, expected 1", len(tr.Tasks)))
	}
	seen := map[string]int{}
	tr.Walk(func(t *Task) bool {
		seen[t.ID]++
		return true
	})
	var dupes []string
	for id, n := range seen {
		if n > 1 {
			dupes = append(dupes, id)
		}
	}
	sort.Strings(dupes)
	for _, id := range dupes {
		problems = append(problems, fmt.Sprintf("task id %s appears %d times", id, seen[id]))
	}
	tr.Walk(func(t *Task) bool {
		for _, dep := range t.DependsOn {
			if seen[dep] == 0 {
				problems = append(problems, fmt.Sprintf("task %s depends on unknown task %s", t.ID, dep))
			}
		}
		return true
	})
	return problems
}

// Summary aggregates task states across the tree.
type Summary struct {
	Total    int
	ByStatus map[Status]int
	// Percent is the mean progress of leaf tasks, completed leaves counting as 100.
	Percent int
}

// Summary counts tasks per status and computes overall completion.
func (tr *Tree) Summary() Summary {
	s := Summary{ByStatus: map[Status]int{}}
	leaves, sum := 0, 0
	tr.Walk(func(t *Task) bool {
		s.Total++
		status := t.Status
		if status == "" {
			status = StatusPending
		}
		s.ByStatus[status]++
		if len(t.Children) == 0 {
			leaves++
			if status == StatusCompleted {
				sum += 100
			} else {
				sum += t.ProgressValue()
			}
		}
		return true
	})
	if leaves > 0 {
		s.Percent = sum / leaves
	}
	return s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
