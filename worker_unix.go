//go:build !windows

package cohort

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// terminate delivers the group's single termination request. There is no
// forced-kill escalation. ESRCH means the worker is already gone, which is
// not an error.
func (w *worker) terminate() error {
	var err error
	w.termOnce.Do(func() {
		w.terminated = true
		if e := unix.Kill(w.pid, unix.SIGTERM); e != nil && !errors.Is(e, unix.ESRCH) {
			err = fmt.Errorf("terminate worker %d (pid %d): %w", w.index, w.pid, e)
		}
	})
	return err
}

// signal reports the signal that killed the worker, if it exited signaled.
func (w *worker) signal() (syscall.Signal, bool) {
	st := w.procState()
	if st == nil {
		return 0, false
	}
	ws, ok := st.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return 0, false
	}
	return ws.Signal(), true
}

// signalName resolves the symbolic name for a signal, falling back to the
// numeric form for values outside the platform's table.
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}
