//go:build !windows

package workflow

import (
	"os/exec"
	"syscall"
)

// detach puts the recorder in its own session so it outlives the hook.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
