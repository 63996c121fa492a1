//go:build !windows

package server

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr puts the server in its own process group so its
// children go down with it.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the process group, falling back to the
// process itself.
func terminateGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if err2 := syscall.Kill(pid, syscall.SIGTERM); err2 != nil {
			return fmt.Errorf("failed to terminate process group -%d: %v, also failed for process %d: %w", pid, err, pid, err2)
		}
	}
	return nil
}
