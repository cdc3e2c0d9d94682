// Package orchestration drives the plan: generating it from a
// specification and stepping single tasks through their execution states.
package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/alantheprice/xmlagent/pkg/events"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/prompts"
	"github.com/alantheprice/xmlagent/pkg/utils"
	"github.com/alantheprice/xmlagent/pkg/workspace"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// Reporter receives progress lines while a task runs.
type Reporter interface {
	Info(msg string)
}

// SnapshotFunc describes the repository for prompts.
type SnapshotFunc func(ctx context.Context, root string) (*workspace.Snapshot, error)

// Orchestrator ties the plan store to the model.
type Orchestrator struct {
	Client llm.Client
	Model  string
	Plans  *plan.Store
	// Root is the repository described in prompts.
	Root     string
	Stream   bool
	OnToken  llm.TokenFunc
	Reporter Reporter
	Snapshot SnapshotFunc
	// Events, when set, receives a task_progress event for every state
	// change ExecuteTask persists.
	Events *events.EventBus
	logger *utils.Logger
}

// New returns an orchestrator for the plan in plans.
func New(client llm.Client, model string, plans *plan.Store) *Orchestrator {
	return &Orchestrator{
		Client:   client,
		Model:    model,
		Plans:    plans,
		Root:     ".",
		Snapshot: workspace.Take,
		logger:   utils.GetLogger(true),
	}
}

func (o *Orchestrator) report(msg string) {
	o.logger.LogProcessStep(msg)
	if o.Reporter != nil {
		o.Reporter.Info(msg)
	}
}

func (o *Orchestrator) repository(ctx context.Context) string {
	snap, err := o.Snapshot(ctx, o.Root)
	if err != nil {
		o.logger.LogError(fmt.Errorf("repository snapshot: %w", err))
		return "{}"
	}
	return snap.JSON()
}

func (o *Orchestrator) send(ctx context.Context, prompt string) (string, error) {
	o.logger.Logf("sending prompt to %s (%d bytes)", o.Model, len(prompt))
	resp, err := o.Client.SendPrompt(ctx, o.Model, llm.UserPrompt(prompt), o.Stream, o.OnToken)
	if err != nil {
		o.logger.LogError(fmt.Errorf("model request failed (%s): %w", llm.Categorize(err), err))
	}
	return resp, err
}

// GeneratePlan asks the model for a plan implementing spec and stores it.
// The returned error is set only when the plan file cannot be written.
func (o *Orchestrator) GeneratePlan(ctx context.Context, spec string) (Result, error) {
	resp, err := o.send(ctx, prompts.PlanPrompt(spec, o.repository(ctx)))
	if err != nil {
		return errorResult(llm.UserMessage(err)), nil
	}
	section, ok := xmlutil.ExtractTaggedSection(resp, "plan")
	if !ok {
		return errorResult(prompts.PlanGenerationFailed()), nil
	}
	tree, err := plan.Parse(section)
	if err != nil {
		return errorResult(fmt.Sprintf("%s: %v", prompts.PlanGenerationFailed(), err)), nil
	}
	for _, problem := range tree.Validate() {
		o.logger.Logf("generated plan: %s", problem)
	}
	if err := o.Plans.Save(tree); err != nil {
		r, _, werr := o.storeFailure("", err)
		return r, werr
	}
	r := Result{Kind: KindOK, Message: prompts.PlanGenerated(tree.Count()), Progress: -1, Plan: tree.String()}
	return r, nil
}

// UpdateTask sets the status, notes and progress of a task. Out of range
// progress values are ignored. Completing a task promotes its dependents.
func (o *Orchestrator) UpdateTask(id string, status plan.Status, notes, progress string) (Result, error) {
	var promoted []string
	tree, err := o.Plans.Update(func(tr *plan.Tree) error {
		if _, err := tr.UpdateTask(id, status, notes, progress); err != nil {
			return err
		}
		if status == plan.StatusCompleted {
			promoted = tr.RefreshReady(id)
		}
		return nil
	})
	if r, failed, werr := o.storeFailure(id, err); failed {
		return r, werr
	}
	r := taskResult(KindOK, prompts.TaskUpdated(id, string(status)), tree.FindTask(id))
	r.Changes = readyChanges(promoted)
	r.Plan = tree.String()
	return r, nil
}

// CompleteTask marks a task completed at 100% and promotes the pending
// tasks that were waiting on it.
func (o *Orchestrator) CompleteTask(id string) (Result, error) {
	r, err := o.UpdateTask(id, plan.StatusCompleted, "", "100")
	if r.OK() {
		r.Message = prompts.TaskCompleted(id)
		r.Progress = 100
		o.report(r.Message)
		for _, c := range r.Changes {
			o.report(c)
		}
	}
	return r, err
}

// ApplyPlanUpdate applies a <plan_update> patch to the stored plan.
func (o *Orchestrator) ApplyPlanUpdate(patch string) (Result, error) {
	var changes plan.ChangeLog
	tree, err := o.Plans.Update(func(tr *plan.Tree) error {
		var err error
		changes, err = tr.ApplyPatch(patch)
		return err
	})
	if r, failed, werr := o.storeFailure("", err); failed {
		return r, werr
	}
	for _, c := range changes {
		o.logger.LogProcessStep("plan update: " + c)
	}
	return Result{
		Kind:     KindOK,
		Message:  prompts.PlanUpdateApplied(len(changes)),
		Progress: -1,
		Changes:  changes,
		Plan:     tree.String(),
	}, nil
}

// storeFailure turns a plan store error into a result. Only write failures
// are passed back as errors; everything else is reported in the result.
func (o *Orchestrator) storeFailure(id string, err error) (Result, bool, error) {
	if err == nil {
		return Result{}, false, nil
	}
	var writeErr *plan.WriteError
	switch {
	case errors.As(err, &writeErr):
		o.logger.LogError(err)
		return errorResult(err.Error()), true, err
	case errors.Is(err, plan.ErrNoPlan):
		return errorResult(prompts.NoPlanExists()), true, nil
	case errors.Is(err, plan.ErrTaskNotFound):
		return errorResult(prompts.TaskNotFound(id)), true, nil
	default:
		o.logger.LogError(err)
		return errorResult(err.Error()), true, nil
	}
}

func readyChanges(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return []string{prompts.TasksNowReady(ids)}
}
