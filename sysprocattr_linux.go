//go:build linux

package cohort

import (
	"os/exec"
	"syscall"
)

// configureDaemon hard-ties a daemonic worker to the parent: the kernel
// kills the worker outright when the parent dies, instead of the default
// cooperative interrupt delivered by the wrapper.
func configureDaemon(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
