package tools

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// startPTY starts cmd with stdout on a pseudo-terminal and returns the
// master side. Stdin and stderr keep whatever the command already has; the
// pty is not made the controlling terminal, so a non-tty stdin is fine.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, err
	}
	// The parent's copy of the slave must go once the child holds it, or
	// reads on the master never see the child exit.
	defer tty.Close()

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 200}); err != nil {
		ptmx.Close()
		return nil, err
	}
	cmd.Stdout = tty
	if err := cmd.Start(); err != nil {
		ptmx.Close()
		return nil, err
	}
	return ptmx, nil
}
