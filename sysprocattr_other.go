//go:build !linux

package cohort

import "os/exec"

// configureDaemon is a no-op where parent-death binding is unavailable.
func configureDaemon(cmd *exec.Cmd) {}
