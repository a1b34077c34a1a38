//go:build !windows

package process

import (
	"os/exec"

	creackpty "github.com/creack/pty"
)

const ptySupported = true

// startPTY runs cmd on a pseudo-terminal. The pty master serves as both
// stdin and the merged output stream. pty.Start makes the child a session
// leader, which also makes it a process group leader for killTree.
func startPTY(role string, cmd *exec.Cmd) (*Process, error) {
	cmd.SysProcAttr = nil
	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{Cols: 200, Rows: 50})
	if err != nil {
		return nil, err
	}
	return newProcess(role, cmd, ptmx, ptmx), nil
}
