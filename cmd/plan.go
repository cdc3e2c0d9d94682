package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/ui"
)

var (
	planSpecFile string
	planNotes    string
	planProgress string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate, inspect and edit the task plan",
	Long: `The plan is a tree of tasks stored in agent_plan.xml. Tasks move through
pending, ready, in-progress, completed and failed; a task can only be executed
once everything it depends on is completed.`,
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate [specification]",
	Short: "Ask the model for a plan implementing a specification",
	Long: `Generates a new plan from a specification given as arguments, with --file,
or on stdin, replacing the current plan.

Examples:
  xmlagent plan generate "Add a --json flag to the report command"
  xmlagent plan generate --file SPEC.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := readInput(strings.Join(args, " "), planSpecFile)
		if err != nil {
			return err
		}
		if strings.TrimSpace(spec) == "" {
			return fmt.Errorf("no specification given")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		a.console.Info("Generating plan with " + a.session.Model + "...")
		r, err := a.session.GeneratePlan(cmd.Context(), spec)
		if err != nil {
			return err
		}
		if rerr := a.report(r); rerr != nil {
			return rerr
		}
		if !xmlOutput {
			tree, err := a.session.Plans.Load()
			if err == nil {
				a.console.Print(ui.RenderPlan(a.console.Theme(), tree) + "\n")
			}
		}
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the plan as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		tree, err := a.session.Plans.Load()
		if errors.Is(err, plan.ErrNoPlan) {
			a.console.Warn("No plan exists")
			return nil
		}
		if err != nil {
			return err
		}
		if xmlOutput {
			a.console.Print(tree.Pretty() + "\n")
			return nil
		}
		a.console.Print(ui.RenderPlan(a.console.Theme(), tree))
		if next := tree.NextReady(); next != nil {
			a.console.Info(fmt.Sprintf("Next: %s %s", next.ID, next.Description))
		}
		return nil
	},
}

var planUpdateCmd = &cobra.Command{
	Use:   "update <task-id> <status>",
	Short: "Set a task's status, notes and progress",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := plan.Status(args[1])
		if !status.IsKnown() {
			return fmt.Errorf("unknown status %q (want one of %s)", args[1], statusList())
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		r, err := a.session.Orchestrator.UpdateTask(args[0], status, planNotes, planProgress)
		if err != nil {
			return err
		}
		return a.report(r)
	},
}

var planPatchCmd = &cobra.Command{
	Use:   "patch [file]",
	Short: "Apply a <plan_update> document to the plan",
	Long: `Applies add_task, modify_task and remove_task operations from a file, or from
stdin when no file (or "-") is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := "-"
		if len(args) == 1 {
			file = args[0]
		}
		patch, err := readInput("", file)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		r, err := a.session.Orchestrator.ApplyPlanUpdate(patch)
		if err != nil {
			return err
		}
		return a.report(r)
	},
}

var planCheckCmd = &cobra.Command{
	Use:   "check [task-id]",
	Short: "Check a task's dependencies, or the whole plan's structure",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		tree, err := a.session.Plans.Load()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			problems := tree.Validate()
			if len(problems) == 0 {
				a.console.Success("Plan is consistent")
				return nil
			}
			for _, p := range problems {
				a.console.Warn(p)
			}
			return errReported
		}
		if tree.FindTask(args[0]) == nil {
			a.console.Error(fmt.Sprintf("Task %s not found", args[0]))
			return errReported
		}
		ok, missing := tree.CheckDependencies(args[0])
		if ok {
			a.console.Success(fmt.Sprintf("All dependencies of %s are completed", args[0]))
			return nil
		}
		a.console.Warn("Dependencies not met")
		for _, m := range missing {
			a.console.Info("  " + m)
		}
		return errReported
	},
}

var planClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Replace the plan with an empty one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if !a.console.Confirm("Clear the current plan?", false) {
			a.console.Info("Plan kept.")
			return nil
		}
		if err := a.session.Plans.Clear(); err != nil {
			return err
		}
		a.console.Success("Plan cleared")
		return nil
	},
}

func init() {
	planCmd.PersistentFlags().BoolVar(&xmlOutput, "xml", false, "Print results as XML")
	planGenerateCmd.Flags().StringVarP(&planSpecFile, "file", "f", "", "Read the specification from a file (- for stdin)")
	planUpdateCmd.Flags().StringVar(&planNotes, "notes", "", "Notes to record on the task")
	planUpdateCmd.Flags().StringVar(&planProgress, "progress", "", "Progress percentage (0-100)")

	planCmd.AddCommand(planGenerateCmd, planShowCmd, planUpdateCmd, planPatchCmd, planCheckCmd, planClearCmd)
	rootCmd.AddCommand(planCmd)
}

func statusList() string {
	names := make([]string, len(plan.Statuses))
	for i, s := range plan.Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// readInput returns inline when set, otherwise the contents of file, with
// "-" meaning stdin. With neither, stdin is read when it is not a terminal.
func readInput(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		if ui.IsTerminal() {
			return "", nil
		}
		file = "-"
	}
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}
