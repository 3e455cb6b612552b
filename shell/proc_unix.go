//go:build unix

package shell

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the worker in its own process group, so killing it also kills the processes it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
