package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alantheprice/xmlagent/pkg/history"
)

var historyLimit int

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or reset the agent's memory document",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the memory document",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		doc, err := a.session.Memory.Load()
		if err != nil {
			return err
		}
		a.console.Print(doc + "\n")
		return nil
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset memory to an empty document",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if !a.console.Confirm("Clear the agent's memory?", false) {
			return nil
		}
		if err := a.session.Memory.Clear(); err != nil {
			return err
		}
		a.console.Success("Memory cleared")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or reset the chat history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recent chat turns",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		entries, err := a.session.History.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			a.console.Info("No chat history")
			return nil
		}
		for _, e := range entries {
			a.console.Heading(fmt.Sprintf("[%s] %s", e.Timestamp, e.Role))
			a.console.Print(e.Content + "\n\n")
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the chat history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if !a.console.Confirm("Clear the chat history?", false) {
			return nil
		}
		if err := a.session.History.Clear(); err != nil {
			return err
		}
		a.console.Success("Chat history cleared")
		return nil
	},
}

func init() {
	historyShowCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.PromptWindow, "Number of entries to show (0 for all)")

	memoryCmd.AddCommand(memoryShowCmd, memoryClearCmd)
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)
	rootCmd.AddCommand(memoryCmd, historyCmd)
}
