package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/alantheprice/xmlagent/pkg/utils"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// MaxCapturedOutput is how many characters of stdout an execution context
// keeps. Longer output keeps its tail behind TruncationMarker.
const MaxCapturedOutput = 5000

// TruncationMarker prefixes output that was cut to MaxCapturedOutput.
const TruncationMarker = "... (output truncated) ...\n"

// CommandResult is the raw outcome of one shell invocation.
type CommandResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
}

// ExecutionContext records one shell command run on behalf of the model.
// ReturnCode is nil when the command never ran.
type ExecutionContext struct {
	Command      string
	AutoRun      bool
	UserApproved bool
	Success      bool
	Output       string
	Error        string
	ReturnCode   *int
	Timestamp    time.Time
}

// XML renders the context in the fixed shape fed back to the model.
func (ec ExecutionContext) XML() string {
	code := ""
	if ec.ReturnCode != nil {
		code = strconv.Itoa(*ec.ReturnCode)
	}
	var b strings.Builder
	b.WriteString("<execution_context>\n")
	fmt.Fprintf(&b, "  <command>%s</command>\n", xmlutil.Escape(ec.Command))
	fmt.Fprintf(&b, "  <auto_run>%t</auto_run>\n", ec.AutoRun)
	fmt.Fprintf(&b, "  <user_approved>%t</user_approved>\n", ec.UserApproved)
	fmt.Fprintf(&b, "  <success>%t</success>\n", ec.Success)
	fmt.Fprintf(&b, "  <return_code>%s</return_code>\n", code)
	fmt.Fprintf(&b, "  <timestamp>%s</timestamp>\n", ec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  <output>%s</output>\n", cdata(ec.Output))
	fmt.Fprintf(&b, "  <error>%s</error>\n", cdata(ec.Error))
	b.WriteString("</execution_context>")
	return b.String()
}

// cdata wraps s in CDATA, splitting any "]]>" so the section stays closed.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

// TruncateOutput keeps the last limit characters of s, prefixed by the
// truncation marker, when s is longer than limit.
func TruncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return TruncationMarker + string(runes[len(runes)-limit:])
}

// Runner executes shell commands, streaming stdout line by line.
type Runner struct {
	// Shell defaults to $SHELL, then /bin/sh.
	Shell string
	// UsePTY attaches stdout to a pseudo-terminal so children line-buffer.
	UsePTY bool
	Dir    string
	Env    []string
}

// NewRunner returns a runner using the user's shell.
func NewRunner() *Runner {
	return &Runner{}
}

func (r *Runner) shell() string {
	if r.Shell != "" {
		return r.Shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

func (r *Runner) newCmd(ctx context.Context, command string, stderr io.Writer) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.shell(), "-c", command)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.Stderr = stderr
	return cmd
}

// Run executes command and blocks until it exits. Each stdout line is
// written to out as it arrives; stderr is captured whole. A non-zero exit is
// reported through the result, not as an error; err is set only when the
// command could not be started.
func (r *Runner) Run(ctx context.Context, command string, out io.Writer) (CommandResult, error) {
	result := CommandResult{Command: command, ExitCode: -1}
	if strings.TrimSpace(command) == "" {
		return result, fmt.Errorf("empty command provided")
	}
	if out == nil {
		out = io.Discard
	}

	var stderr bytes.Buffer
	var cmd *exec.Cmd
	var stdout io.ReadCloser
	var tty *os.File

	if r.UsePTY {
		cmd = r.newCmd(ctx, command, &stderr)
		// Stdin stays off the pty; nothing ever types into it.
		devNull, err := os.Open(os.DevNull)
		if err == nil {
			cmd.Stdin = devNull
			defer devNull.Close()
			tty, err = startPTY(cmd)
		}
		if err != nil {
			utils.GetLogger(true).Logf("pty unavailable, falling back to a pipe: %v", err)
			cmd = nil
		} else {
			stdout = tty
		}
	}
	if cmd == nil {
		cmd = r.newCmd(ctx, command, &stderr)
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return result, fmt.Errorf("failed to open stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return result, fmt.Errorf("failed to start command: %w", err)
		}
		stdout = pipe
	}

	lines := streamLines(stdout, out)
	waitErr := cmd.Wait()
	if tty != nil {
		tty.Close()
	}

	result.Stdout = strings.Join(lines, "\n")
	result.Stderr = stderr.String()
	switch {
	case waitErr == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			result.Stderr += ctx.Err().Error()
		}
	}
	result.Success = result.ExitCode == 0
	return result, nil
}

// streamLines copies r to out line by line and returns the lines without
// their terminators.
func streamLines(r io.Reader, out io.Writer) []string {
	var lines []string
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			fmt.Fprintln(out, line)
			lines = append(lines, line)
		}
		if err != nil {
			// A pty master reports EIO once the child closes its side.
			return lines
		}
	}
}

// RunCommand runs command with the default runner.
func RunCommand(ctx context.Context, command string, out io.Writer) (CommandResult, error) {
	return NewRunner().Run(ctx, command, out)
}

// ShellCommand runs command on behalf of the model and records the outcome.
// Unless autoRun is set, confirm is asked first; a declined command comes
// back with UserApproved false and no return code.
func (r *Runner) ShellCommand(ctx context.Context, command string, autoRun bool, confirm func(command string) bool, out io.Writer) ExecutionContext {
	ec := ExecutionContext{
		Command:   command,
		AutoRun:   autoRun,
		Timestamp: time.Now(),
	}
	if !autoRun && (confirm == nil || !confirm(command)) {
		return ec
	}
	ec.UserApproved = true

	res, err := r.Run(ctx, command, out)
	if err != nil {
		ec.Error = err.Error()
		return ec
	}
	code := res.ExitCode
	ec.ReturnCode = &code
	ec.Success = res.Success
	ec.Output = TruncateOutput(res.Stdout, MaxCapturedOutput)
	ec.Error = res.Stderr
	ec.Timestamp = time.Now()
	return ec
}
