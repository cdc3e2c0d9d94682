package orchestration

import (
	"strconv"

	"github.com/beevik/etree"

	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// Kind says whether a Result reports success, a warning or an error.
type Kind string

const (
	KindOK      Kind = "ok"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Result is the structured outcome of a plan operation. Recoverable
// failures such as unknown tasks or unmet dependencies are reported here
// rather than as Go errors.
type Result struct {
	Kind        Kind
	Message     string
	TaskID      string
	Description string
	Status      plan.Status
	// Progress is -1 when the result carries no progress value.
	Progress            int
	Actions             string
	PlanUpdate          string
	Plan                string
	MissingDependencies []string
	Changes             []string
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Kind == KindOK
}

func errorResult(msg string) Result {
	return Result{Kind: KindError, Message: msg, Progress: -1}
}

func taskResult(kind Kind, msg string, t *plan.Task) Result {
	r := Result{Kind: kind, Message: msg, Progress: -1}
	if t != nil {
		r.TaskID = t.ID
		r.Description = t.Description
		r.Status = t.Status
	}
	return r
}

// XML renders the result as an <agent-response> document.
func (r Result) XML() string {
	fields := []xmlutil.Field{{Name: r.messageField(), Value: r.Message}}
	if task := r.taskElement(); task != "" {
		fields = append(fields, xmlutil.Field{Name: "task", Value: task})
	}
	if len(r.MissingDependencies) > 0 {
		fields = append(fields, xmlutil.Field{Name: "missing_dependencies", Value: listElement("missing_dependencies", "dependency", r.MissingDependencies)})
	}
	if len(r.Changes) > 0 {
		fields = append(fields, xmlutil.Field{Name: "changes", Value: listElement("changes", "change", r.Changes)})
	}
	fields = append(fields,
		xmlutil.Field{Name: "actions", Value: r.Actions},
		xmlutil.Field{Name: "plan_update", Value: r.PlanUpdate},
		xmlutil.Field{Name: "plan", Value: r.Plan},
	)
	return xmlutil.SerializeResponse(fields...)
}

func (r Result) messageField() string {
	switch r.Kind {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	default:
		return "status"
	}
}

func (r Result) taskElement() string {
	if r.TaskID == "" {
		return ""
	}
	el := etree.NewElement("task")
	el.CreateAttr("id", r.TaskID)
	el.CreateAttr("description", r.Description)
	if r.Status != "" {
		el.CreateAttr("status", string(r.Status))
	}
	if r.Progress >= 0 {
		el.CreateAttr("progress", strconv.Itoa(r.Progress))
	}
	return render(el)
}

func listElement(tag, item string, values []string) string {
	el := etree.NewElement(tag)
	for _, v := range values {
		el.CreateElement(item).SetText(v)
	}
	return render(el)
}

func render(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
