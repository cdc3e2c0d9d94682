package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alantheprice/xmlagent/pkg/ui"
)

const chatHelp = `Commands:
  /paste        enter multi-line mode; finish with a line containing /end
  /model NAME   switch model (aliases allowed)
  /models       list model aliases and local models
  /search QUERY search the web
  /plan         show the current plan
  /help         show this help
  /exit         leave`

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the agent",
	Long: `Starts an interactive conversation. With a message argument, sends that
single message and exits once the answer has been carried out.

Press Ctrl+C during a request to abandon it and return to the prompt.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.maybeStartViewer(cmd.Context())()
	if len(args) > 0 {
		if err := a.chatTurn(cmd.Context(), strings.Join(args, " ")); err != nil {
			return errReported
		}
		return nil
	}

	a.console.Heading("xmlagent using " + a.session.Model)
	a.console.Print("Type /help for commands.\n")
	for {
		line, err := a.console.ReadLine("\n> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.console.Print("\n")
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if a.chatCommand(cmd.Context(), input) {
				return nil
			}
			if input != "/paste" {
				continue
			}
			if input, err = a.readPaste(); err != nil {
				return err
			}
			if strings.TrimSpace(input) == "" {
				continue
			}
		}
		a.chatTurn(cmd.Context(), input)
	}
}

// chatTurn sends one message; Ctrl+C cancels the request without leaving
// the REPL.
func (a *app) chatTurn(parent context.Context, message string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	_, err := a.session.Chat(ctx, message)
	if ctx.Err() != nil {
		a.console.Warn("Request cancelled.")
	}
	return err
}

// chatCommand handles a slash command and reports whether to quit.
func (a *app) chatCommand(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		a.console.Print(chatHelp + "\n")
	case "/paste":
		a.console.Info("Paste mode: finish with /end on its own line.")
	case "/model":
		if len(fields) < 2 {
			a.console.Info("Current model: " + a.session.Model)
			break
		}
		a.session.SetModel(a.cfg.ResolveModel(fields[1]))
		a.console.Success("Model set to " + a.session.Model)
	case "/models":
		a.writeModels(ctx, a.console.Writer())
	case "/search":
		query := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		if query == "" {
			a.console.Error("Please provide a search query")
			break
		}
		if err := a.search(ctx, a.console.Writer(), query); err != nil {
			a.console.Warn(err.Error())
		}
	case "/plan":
		tree, err := a.session.Plans.Load()
		if err != nil {
			a.console.Warn(err.Error())
			break
		}
		a.console.Print(ui.RenderPlan(a.console.Theme(), tree) + "\n")
	default:
		a.console.Warn("Unknown command " + fields[0] + "; type /help")
	}
	return false
}

func (a *app) readPaste() (string, error) {
	var lines []string
	for {
		line, err := a.console.ReadLine("")
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if strings.TrimSpace(line) == "/end" {
			break
		}
		lines = append(lines, line)
		if err != nil {
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}
