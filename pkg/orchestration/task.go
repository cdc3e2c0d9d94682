package orchestration

import (
	"context"
	"strconv"

	"github.com/alantheprice/xmlagent/pkg/events"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/prompts"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// Progress checkpoints recorded while a task is executed.
const (
	ProgressStarted   = 10
	ProgressPlanning  = 30
	ProgressGenerated = 50
	ProgressReady     = 70
)

// ExecuteTask moves task id through its execution states and asks the model
// for the actions implementing it. The actions are returned, not run;
// running them is left to the caller so each can be confirmed.
//
// A completed task yields a warning and unmet dependencies an error result,
// both without touching the plan. The returned error is set only when the
// plan file cannot be written.
func (o *Orchestrator) ExecuteTask(ctx context.Context, id string) (Result, error) {
	tree, err := o.Plans.Load()
	if r, failed, werr := o.storeFailure(id, err); failed {
		return r, werr
	}
	task := tree.FindTask(id)
	if task == nil {
		return errorResult(prompts.TaskNotFound(id)), nil
	}
	if task.Status == plan.StatusCompleted {
		return taskResult(KindWarning, prompts.TaskAlreadyCompleted(id), task), nil
	}
	if ok, missing := tree.CheckDependencies(id); !ok {
		r := taskResult(KindError, prompts.DependenciesNotMet(), task)
		r.Status = ""
		r.MissingDependencies = missing
		return r, nil
	}

	tree, r, failed, err := o.mark(id, plan.StatusInProgress, "", ProgressStarted)
	if failed {
		return r, err
	}
	task = tree.FindTask(id)
	o.report(prompts.ExecutingTask(id, task.Description))
	o.report(prompts.StatusInProgress())

	in := prompts.TaskInput{
		ID:          id,
		Description: task.Description,
		Repository:  o.repository(ctx),
		Plan:        tree.Pretty(),
	}
	if parent := tree.Parent(id); parent != nil {
		in.ParentID = parent.ID
		in.ParentDescription = parent.Description
	}
	prompt := prompts.TaskPrompt(in)

	if _, r, failed, err := o.mark(id, plan.StatusInProgress, "", ProgressPlanning); failed {
		return r, err
	}
	o.report(prompts.ProgressPlanning())

	resp, err := o.send(ctx, prompt)
	if err != nil {
		r := taskResult(KindError, prompts.TaskExecutionError(llm.UserMessage(err)), task)
		r.Status = plan.StatusInProgress
		r.Progress = ProgressPlanning
		return r, nil
	}

	if _, r, failed, err := o.mark(id, plan.StatusInProgress, "", ProgressGenerated); failed {
		return r, err
	}
	o.report(prompts.ProgressActionsGenerated())

	actions, hasActions := xmlutil.ExtractTaggedSection(resp, "actions")
	planUpdate, hasUpdate := xmlutil.ExtractTaggedSection(resp, "plan_update")
	if hasUpdate {
		update, err := o.ApplyPlanUpdate(planUpdate)
		if err != nil {
			return update, err
		}
		if !update.OK() {
			o.report(update.Message)
		}
	}

	if !hasActions {
		if _, r, failed, err := o.mark(id, plan.StatusFailed, prompts.FailedToGenerateActions(), 0); failed {
			return r, err
		}
		o.report(prompts.TaskFailedNoActions(id))
		r := taskResult(KindError, prompts.FailedToGenerateActions()+" for task", task)
		r.Status = plan.StatusFailed
		r.Progress = 0
		r.PlanUpdate = planUpdate
		return r, nil
	}

	if _, r, failed, err := o.mark(id, plan.StatusInProgress, "", ProgressReady); failed {
		return r, err
	}
	o.report(prompts.ProgressReady())

	r = taskResult(KindOK, prompts.ActionsReady(id), task)
	r.Status = plan.StatusInProgress
	r.Progress = ProgressReady
	r.Actions = actions
	r.PlanUpdate = planUpdate
	return r, nil
}

// mark persists a state change of task id. A task removed by a plan update
// in the meantime is reported as not found.
func (o *Orchestrator) mark(id string, status plan.Status, notes string, progress int) (*plan.Tree, Result, bool, error) {
	tree, err := o.Plans.Update(func(tr *plan.Tree) error {
		_, err := tr.UpdateTask(id, status, notes, strconv.Itoa(progress))
		return err
	})
	r, failed, werr := o.storeFailure(id, err)
	if !failed && o.Events != nil {
		o.Events.Publish(events.EventTypeTaskProgress, events.TaskProgressEvent(id, string(status), progress, notes))
	}
	return tree, r, failed, werr
}
