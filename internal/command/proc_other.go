//go:build !linux && !darwin

package command

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
