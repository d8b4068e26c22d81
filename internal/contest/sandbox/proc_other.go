//go:build !linux

package sandbox

import "os/exec"

func setProcAttr(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func applyMemoryLimit(pid int, megabytes int) error {
	return nil
}
