//go:build windows

package process

import "os/exec"

func setSysProcAttr(_ *exec.Cmd) {}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
