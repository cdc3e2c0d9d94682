// Package ui renders agent output on the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/alantheprice/xmlagent/pkg/utils"
)

// Console writes styled messages and asks for confirmations.
type Console struct {
	out    io.Writer
	theme  Theme
	logger *utils.Logger
	mu     sync.Mutex
}

// NewConsole returns a console writing to out. A nil out means stdout.
func NewConsole(out io.Writer, logger *utils.Logger) *Console {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = utils.GetLogger(false)
	}
	return &Console{out: out, theme: DefaultTheme(), logger: logger}
}

// Theme returns the styles in use.
func (c *Console) Theme() Theme {
	return c.theme
}

// Writer exposes the raw output stream, used for streaming command output.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Print writes s unstyled.
func (c *Console) Print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

// Printf writes a formatted unstyled message.
func (c *Console) Printf(format string, args ...any) {
	c.Print(fmt.Sprintf(format, args...))
}

func (c *Console) line(style func(...string) string, msg string) {
	c.Print(style(msg) + "\n")
}

// Info prints an informational line.
func (c *Console) Info(msg string) {
	c.logger.Log(msg)
	c.line(c.theme.Info.Render, msg)
}

// Success prints a success line.
func (c *Console) Success(msg string) {
	c.logger.Log(msg)
	c.line(c.theme.Success.Render, msg)
}

// Warn prints a warning line.
func (c *Console) Warn(msg string) {
	c.logger.Logf("warning: %s", msg)
	c.line(c.theme.Warning.Render, msg)
}

// Error prints an error line.
func (c *Console) Error(msg string) {
	c.logger.Logf("error: %s", msg)
	c.line(c.theme.Error.Render, msg)
}

// Heading prints a section title.
func (c *Console) Heading(msg string) {
	c.line(c.theme.Heading.Render, msg)
}

// Preview shows a titled block of content, such as file contents or a diff.
func (c *Console) Preview(title, body string) {
	c.line(c.theme.Heading.Render, title)
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return
	}
	c.Print(body + "\n")
}

// Panel prints body inside a bordered box sized to the terminal.
func (c *Console) Panel(title, body string) {
	box := c.theme.Box
	if w := Width(); w > 4 {
		box = box.MaxWidth(w)
	}
	content := body
	if title != "" {
		content = c.theme.Heading.Render(title) + "\n" + body
	}
	c.Print(box.Render(content) + "\n")
}

// Reasoning prints a streamed reasoning fragment.
func (c *Console) Reasoning(fragment string) {
	c.Print(c.theme.Reasoning.Render(fragment))
}

// Answer prints a streamed answer fragment.
func (c *Console) Answer(fragment string) {
	c.Print(fragment)
}

// Confirm asks a yes/no question. Pressing enter takes defaultYes, and so
// does every prompt while the logger is non-interactive (--yes).
func (c *Console) Confirm(prompt string, defaultYes bool) bool {
	return c.logger.AskForConfirmation(prompt, defaultYes, false)
}

// ReadLine prompts for one line of input.
func (c *Console) ReadLine(prompt string) (string, error) {
	return c.logger.ReadLine(c.theme.Info.Render(prompt))
}

// IsTerminal reports whether stdin is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Width returns the terminal width, or 0 when stdout is not a terminal.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}
