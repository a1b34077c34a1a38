//go:build windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// sysProcAttr keeps the viewer from opening a console window of its own.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	return cmd.Process.Kill()
}
