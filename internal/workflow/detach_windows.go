//go:build windows

package workflow

import "os/exec"

func detach(cmd *exec.Cmd) {}
