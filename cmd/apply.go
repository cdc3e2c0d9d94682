package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
)

var applyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Carry out a saved model response",
	Long: `Runs a response document through the same processing as a live answer:
memory updates, file actions and edits, shell commands, plan updates and the
execution status. Reads stdin when no file (or "-") is given.

Command results are fed back to the model as in a chat turn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := "-"
		if len(args) == 1 {
			file = args[0]
		}
		response, err := readInput("", file)
		if err != nil {
			return err
		}
		if strings.TrimSpace(response) == "" {
			return fmt.Errorf("empty response")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		turn := a.session.ProcessResponse(cmd.Context(), response)
		if len(turn.Last().Errors) > 0 {
			return errReported
		}
		return turn.Err
	},
}

var safeCmd = &cobra.Command{
	Use:   "safe <command...>",
	Short: "Classify a shell command the way the dispatcher does",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		safe := tools.IsCommandSafe(command)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "command:    %s\n", command)
		fmt.Fprintf(out, "auto-run:   %t\n", safe)
		fmt.Fprintf(out, "risk level: %s\n", tools.GetCommandRiskLevel(command))
		if d, ok := tools.IsDestructiveCommand(command); ok {
			fmt.Fprintf(out, "reason:     %s\n", d.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd, safeCmd)
}
