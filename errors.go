package cohort

import (
	"fmt"
	"strings"
)

// FailureKind identifies how a worker failed. The set is closed: every
// failure a Group reports is exactly one of these.
type FailureKind int

const (
	// KindRaised means the worker's entry point returned an error or
	// panicked and the wrapper delivered the detail over the failure
	// channel before exiting.
	KindRaised FailureKind = iota
	// KindSignaled means the worker was killed by a signal without writing
	// to the failure channel.
	KindSignaled
	// KindExited means the worker exited on its own with a non-zero status
	// without writing to the failure channel.
	KindExited
)

func (k FailureKind) String() string {
	switch k {
	case KindRaised:
		return "raised"
	case KindSignaled:
		return "signaled"
	case KindExited:
		return "exited"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// WorkerError is the single terminal outcome of a failed join. Index and Pid
// identify the worker whose failure was designated first; Kind selects which
// of the remaining fields is meaningful. Msg carries the failure detail for
// raised failures and, for every kind, any extended report recovered from the
// error-report store.
type WorkerError struct {
	Index    int
	Pid      int
	Kind     FailureKind
	Msg      string
	Signal   string
	ExitCode int
}

func (e *WorkerError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindRaised:
		fmt.Fprintf(&b, "worker %d (pid %d) failed", e.Index, e.Pid)
	case KindSignaled:
		fmt.Fprintf(&b, "worker %d (pid %d) terminated by signal %s", e.Index, e.Pid, e.Signal)
	case KindExited:
		fmt.Fprintf(&b, "worker %d (pid %d) exited with status %d", e.Index, e.Pid, e.ExitCode)
	default:
		fmt.Fprintf(&b, "worker %d (pid %d) failed (%s)", e.Index, e.Pid, e.Kind)
	}
	if e.Msg != "" {
		b.WriteString(":\n")
		b.WriteString(strings.TrimRight(e.Msg, "\n"))
	}
	return b.String()
}
