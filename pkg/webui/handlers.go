package webui

import (
	"errors"
	"net/http"
	"os"

	"github.com/alantheprice/xmlagent/pkg/memory"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/ui"
)

// TaskView is one task as served to the browser.
type TaskView struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Complexity  string     `json:"complexity,omitempty"`
	Progress    *int       `json:"progress,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Children    []TaskView `json:"children,omitempty"`
}

// PlanView is the JSON document behind /api/plan.
type PlanView struct {
	Exists   bool           `json:"exists"`
	Path     string         `json:"path"`
	Total    int            `json:"total"`
	Percent  int            `json:"percent"`
	ByStatus map[string]int `json:"by_status"`
	Rendered string         `json:"rendered"`
	XML      string         `json:"xml,omitempty"`
	Tasks    []TaskView     `json:"tasks"`
}

// BuildPlanView loads the plan and describes it for the browser. A missing
// plan is not an error.
func BuildPlanView(store *plan.Store) (PlanView, error) {
	view := PlanView{Path: store.Path(), ByStatus: map[string]int{}, Tasks: []TaskView{}}
	tree, err := store.Load()
	if errors.Is(err, plan.ErrNoPlan) {
		view.Rendered = ui.RenderPlan(ui.PlainTheme(), nil)
		return view, nil
	}
	if err != nil {
		return view, err
	}

	sum := tree.Summary()
	view.Exists = true
	view.Total = sum.Total
	view.Percent = sum.Percent
	for status, n := range sum.ByStatus {
		view.ByStatus[string(status)] = n
	}
	view.Rendered = ui.RenderPlan(ui.PlainTheme(), tree)
	view.XML = tree.Pretty()
	for _, t := range tree.Tasks {
		view.Tasks = append(view.Tasks, taskView(t))
	}
	return view, nil
}

func taskView(t *plan.Task) TaskView {
	status := t.Status
	if status == "" {
		status = plan.StatusPending
	}
	v := TaskView{
		ID:          t.ID,
		Description: t.Description,
		Status:      string(status),
		Complexity:  string(t.Complexity),
		Progress:    t.Progress,
		DependsOn:   t.DependsOn,
		Notes:       t.Notes,
	}
	for _, c := range t.Children {
		v.Children = append(v.Children, taskView(c))
	}
	return v
}

func (ps *PlanServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(data)
}

func (ps *PlanServer) handleAPIPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	view, err := BuildPlanView(ps.plans)
	if err != nil {
		ps.logger.LogError(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleAPIMemory returns the memory document without creating it.
func (ps *PlanServer) handleAPIMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ps.memoryPath == "" {
		http.NotFound(w, r)
		return
	}
	doc := memory.DefaultDocument
	data, err := os.ReadFile(ps.memoryPath)
	switch {
	case err == nil:
		doc = string(data)
	case !os.IsNotExist(err):
		ps.logger.LogError(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": ps.memoryPath, "document": doc})
}
