//go:build windows

package cohort

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// terminate delivers the group's single termination request. Windows cannot
// signal arbitrary processes, so the request is a kill of the direct child.
func (w *worker) terminate() error {
	var err error
	w.termOnce.Do(func() {
		w.terminated = true
		if w.cmd.Process == nil {
			return
		}
		if e := w.cmd.Process.Kill(); e != nil && !errors.Is(e, os.ErrProcessDone) {
			err = fmt.Errorf("terminate worker %d (pid %d): %w", w.index, w.pid, e)
		}
	})
	return err
}

// signal never reports a signal on Windows; exits are classified by status.
func (w *worker) signal() (syscall.Signal, bool) {
	return 0, false
}

func signalName(sig syscall.Signal) string {
	return sig.String()
}
