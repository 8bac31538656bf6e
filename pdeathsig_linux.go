//go:build linux

package cohort

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// setParentDeathSignal asks the kernel to deliver SIGINT to this worker when
// the parent thread dies, so an abandoned worker still gets the cooperative
// interrupt instead of running forever. Best-effort: failure is reported but
// never stops the worker from running.
func setParentDeathSignal() {
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGINT), 0, 0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "cohort: set parent-death signal: %v\n", err)
		return
	}
	// The parent may have died between fork and prctl, in which case the
	// signal was never armed. Getppid reporting init means exactly that.
	if os.Getppid() == 1 {
		p, err := os.FindProcess(os.Getpid())
		if err == nil {
			_ = p.Signal(unix.SIGINT)
		}
	}
}
