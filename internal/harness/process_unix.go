//go:build !windows

package harness

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr runs the child in its own process group so the whole
// tree can be killed together
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup sends SIGKILL to the process group led by pid
func killProcessGroup(pid int) error {
	// Negative PID targets the whole group
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if err2 := syscall.Kill(pid, syscall.SIGKILL); err2 != nil {
			return fmt.Errorf("failed to kill process group -%d: %v, also failed to kill process %d: %v", pid, err, pid, err2)
		}
	}
	return nil
}
