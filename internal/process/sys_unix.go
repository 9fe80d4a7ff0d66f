//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so that Kill can
// signal the whole group, not just the immediate child.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
