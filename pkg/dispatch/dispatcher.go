package dispatch

import (
	"context"
	"fmt"
	"io"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
	"github.com/alantheprice/xmlagent/pkg/utils"
)

// Console is where the dispatcher reports what it does.
type Console interface {
	Info(msg string)
	Success(msg string)
	Warn(msg string)
	Error(msg string)
	Preview(title, body string)
	Writer() io.Writer
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string, defaultYes bool) bool
}

// Outcome reports how one action or edit ended. Skipped means the user
// declined; Err is set when execution was attempted and failed.
type Outcome struct {
	Target   string
	Done     bool
	Skipped  bool
	Err      error
	Warnings []string
}

// Dispatcher executes parsed actions one at a time.
type Dispatcher struct {
	Console   Console
	Confirmer Confirmer
	Runner    *tools.Runner
	// AutoApprove answers every confirmation with yes.
	AutoApprove bool
}

// New returns a dispatcher. A nil runner uses the default shell.
func New(console Console, confirmer Confirmer, runner *tools.Runner) *Dispatcher {
	if runner == nil {
		runner = tools.NewRunner()
	}
	return &Dispatcher{Console: console, Confirmer: confirmer, Runner: runner}
}

func (d *Dispatcher) confirm(prompt string) bool {
	if d.AutoApprove {
		return true
	}
	if d.Confirmer == nil {
		return false
	}
	return d.Confirmer.Confirm(prompt, true)
}

// RunActions executes actions in order. A declined or failed action does
// not stop the ones after it.
func (d *Dispatcher) RunActions(ctx context.Context, actions []Action) []Outcome {
	if len(actions) == 0 {
		return nil
	}
	d.Console.Info("The model suggests the following actions:")
	outcomes := make([]Outcome, 0, len(actions))
	for _, a := range actions {
		outcomes = append(outcomes, d.RunAction(ctx, a))
	}
	return outcomes
}

// RunAction previews a single action, asks for confirmation and runs it.
func (d *Dispatcher) RunAction(ctx context.Context, a Action) Outcome {
	logger := utils.GetLogger(true)
	out := Outcome{Target: a.Path}

	switch a.Type {
	case ActionCreateFile:
		d.Console.Preview(fmt.Sprintf("Action: Create file '%s'", a.Path), a.Content)
	case ActionModifyFile:
		d.Console.Preview(fmt.Sprintf("Action: Modify file '%s'", a.Path), "")
		for _, c := range a.Changes {
			d.Console.Preview("- Original:", c.Original)
			d.Console.Preview("+ New:", c.New)
		}
	case ActionRunCommand:
		out.Target = a.Command
		d.Console.Preview(fmt.Sprintf("Action: Run command '%s'", a.Command), "")
		d.warnIfDestructive(a.Command)
	default:
		d.Console.Warn(fmt.Sprintf("Unknown action type: %s", a.Type))
		out.Err = fmt.Errorf("unknown action type %q", a.Type)
		return out
	}

	if !d.confirm("Execute this action?") {
		d.Console.Warn("Action skipped")
		out.Skipped = true
		return out
	}
	logger.Logf("executing %s action on %s", a.Type, out.Target)

	switch a.Type {
	case ActionCreateFile:
		msg, err := tools.CreateFile(a.Path, a.Content)
		if err != nil {
			out.Err = err
			d.Console.Error(fmt.Sprintf("Error executing action: %v", err))
			return out
		}
		d.Console.Success(msg)
		out.Done = true

	case ActionModifyFile:
		res, err := tools.ModifyFile(a.Path, a.Changes)
		out.Warnings = res.Warnings
		if err != nil {
			out.Err = err
			d.Console.Error(fmt.Sprintf("Error: %v", err))
			return out
		}
		for _, w := range res.Warnings {
			d.Console.Warn("Warning: " + w)
		}
		if !res.Written() {
			d.Console.Warn(fmt.Sprintf("No changes applied to %s", a.Path))
			return out
		}
		d.Console.Preview(tools.Diff(a.Path, res.Before, res.After), "")
		d.Console.Success(fmt.Sprintf("Modified file: %s", a.Path))
		out.Done = true

	case ActionRunCommand:
		d.Console.Info(fmt.Sprintf("Running command: %s", a.Command))
		res, err := d.Runner.Run(ctx, a.Command, d.Console.Writer())
		if err != nil {
			out.Err = err
			d.Console.Error(fmt.Sprintf("Error executing action: %v", err))
			return out
		}
		if !res.Success {
			out.Err = fmt.Errorf("command exited with code %d", res.ExitCode)
			d.Console.Error(fmt.Sprintf("Command failed with exit code %d", res.ExitCode))
			if res.Stderr != "" {
				d.Console.Error("Error: " + res.Stderr)
			}
			return out
		}
		d.Console.Success("Command completed successfully")
		out.Done = true
	}
	return out
}

// RunFileEdits applies search/replace edits, showing a diff before each.
func (d *Dispatcher) RunFileEdits(edits []FileEdit) []Outcome {
	if len(edits) == 0 {
		return nil
	}
	d.Console.Info("The model suggests the following file edits:")
	outcomes := make([]Outcome, 0, len(edits))
	for _, e := range edits {
		outcomes = append(outcomes, d.RunFileEdit(e))
	}
	return outcomes
}

// RunFileEdit applies one edit. A missing target file is created with the
// replacement text after a second confirmation.
func (d *Dispatcher) RunFileEdit(e FileEdit) Outcome {
	out := Outcome{Target: e.Path}
	if e.Path == "" {
		out.Err = fmt.Errorf("missing file path in edit")
		d.Console.Error("Error: Missing file path in edit")
		return out
	}
	if !e.HasSearch || !e.HasReplace {
		out.Err = fmt.Errorf("edit of %s is missing search or replace", e.Path)
		d.Console.Error("Error: Missing search or replace elements")
		return out
	}

	planned, err := tools.PlanEdit(e.Path, e.Search, e.Replace)
	if err != nil {
		out.Err = err
		d.Console.Error(fmt.Sprintf("Error applying edit: %v", err))
		return out
	}
	d.Console.Preview(fmt.Sprintf("File Edit: %s", e.Path), tools.Diff(e.Path, planned.Before, planned.After))

	if !d.confirm("Apply this edit?") {
		d.Console.Warn("Edit skipped")
		out.Skipped = true
		return out
	}
	if planned.Created && !d.confirm(fmt.Sprintf("File %s does not exist. Create it?", e.Path)) {
		d.Console.Warn("Edit skipped")
		out.Skipped = true
		return out
	}
	if !planned.Applied {
		out.Warnings = []string{planned.Warning}
		d.Console.Warn("Warning: " + planned.Warning)
		return out
	}
	if err := tools.CommitEdit(planned); err != nil {
		out.Err = err
		d.Console.Error(fmt.Sprintf("Error applying edit: %v", err))
		return out
	}
	if planned.Created {
		d.Console.Success(fmt.Sprintf("Created file: %s", e.Path))
	}
	d.Console.Success(fmt.Sprintf("Applied edit to %s", e.Path))
	out.Done = true
	return out
}

// RunShellCommands runs each command and returns its execution context.
// The model's safe_to_autorun flag only skips confirmation when the command
// also passes tools.IsCommandSafe.
func (d *Dispatcher) RunShellCommands(ctx context.Context, cmds []ShellCommand) []tools.ExecutionContext {
	if len(cmds) == 0 {
		return nil
	}
	d.Console.Info("The model suggests the following shell commands:")
	contexts := make([]tools.ExecutionContext, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		autoRun := c.SafeToAutorun && tools.IsCommandSafe(c.Command)
		if c.SafeToAutorun && !autoRun {
			utils.GetLogger(true).Logf("model marked %q safe to autorun; safety check disagreed", c.Command)
		}
		if autoRun {
			d.Console.Success("Auto-running safe command: " + c.Command)
		} else {
			d.Console.Preview("Shell command: "+c.Command, "")
			d.warnIfDestructive(c.Command)
		}

		ec := d.Runner.ShellCommand(ctx, c.Command, autoRun, func(string) bool {
			return d.confirm("Execute this shell command?")
		}, d.Console.Writer())

		switch {
		case !ec.UserApproved:
			d.Console.Warn("Command skipped")
		case ec.Success:
			d.Console.Success("Command completed successfully")
		case ec.ReturnCode != nil:
			d.Console.Error(fmt.Sprintf("Command failed with return code %d", *ec.ReturnCode))
		default:
			d.Console.Error("Error executing command: " + ec.Error)
		}
		contexts = append(contexts, ec)
	}
	return contexts
}

func (d *Dispatcher) warnIfDestructive(command string) {
	if dc, ok := tools.IsDestructiveCommand(command); ok {
		d.Console.Warn(fmt.Sprintf("%s (%s risk)", dc.Description, dc.RiskLevel))
	}
}
