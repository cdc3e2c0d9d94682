package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alantheprice/xmlagent/pkg/plan"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Execute or complete a single plan task",
}

var taskExecuteCmd = &cobra.Command{
	Use:   "execute [task-id]",
	Short: "Generate and run the actions for a task",
	Long: `Asks the model for the actions implementing a task, confirms and runs each,
and offers to mark the task completed when they all succeed. Without a task id
the next ready task is executed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		id := ""
		if len(args) == 1 {
			id = args[0]
		} else {
			tree, err := a.session.Plans.Load()
			if errors.Is(err, plan.ErrNoPlan) {
				a.console.Warn("No plan exists")
				return errReported
			}
			if err != nil {
				return err
			}
			next := tree.NextReady()
			if next == nil {
				a.console.Info("No task is ready to run")
				return nil
			}
			id = next.ID
		}

		defer a.maybeStartViewer(cmd.Context())()
		r, outcomes, err := a.session.ExecuteTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		if rerr := a.report(r); rerr != nil {
			return rerr
		}
		skipped := 0
		for _, o := range outcomes {
			if !o.Done {
				skipped++
			}
		}
		if skipped > 0 {
			a.console.Warn(fmt.Sprintf("%d of %d actions did not complete; task %s stays in progress", skipped, len(outcomes), id))
		}
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed and promote the tasks waiting on it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		r, err := a.session.Orchestrator.CompleteTask(args[0])
		if err != nil {
			return err
		}
		if !r.OK() || xmlOutput {
			return a.report(r)
		}
		return nil
	},
}

func init() {
	taskCmd.PersistentFlags().BoolVar(&xmlOutput, "xml", false, "Print results as XML")
	taskCmd.AddCommand(taskExecuteCmd, taskCompleteCmd)
	rootCmd.AddCommand(taskCmd)
}
