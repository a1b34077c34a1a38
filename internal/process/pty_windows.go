//go:build windows

package process

import (
	"errors"
	"os/exec"
)

const ptySupported = false

func startPTY(string, *exec.Cmd) (*Process, error) {
	return nil, errors.New("pty not supported on windows")
}
