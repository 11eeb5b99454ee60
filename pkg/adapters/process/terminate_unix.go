//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}
