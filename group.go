package cohort

import (
	"context"
	"errors"
	"sync"

	"github.com/Paintersrp/cohort/errreport"
)

// Group supervises a set of workers launched together. All workers run the
// same entry point (or command); the group either joins, when every worker
// exits successfully, or fails, in which case the survivors are terminated
// and Join reports a single WorkerError for the worker that broke first.
type Group struct {
	// ID uniquely identifies this launch. It namespaces the error-report
	// store and tags every event the group emits.
	ID string
	// Entry is the registered entry point name, or the command path for
	// groups launched with StartCommand.
	Entry string

	workers []*worker
	exits   chan int
	store   *errreport.Store
	events  chan<- Event
	capture bool

	mu        sync.Mutex
	remaining map[int]*worker
	failure   *WorkerError

	// settled closes once the group reaches a terminal state, waking any
	// Join blocked on exits that will never come.
	settled    chan struct{}
	settleOnce sync.Once

	eventDrops uint64
}

// Join waits for the group to make progress and reports whether it has fully
// joined. It returns (true, nil) once every worker has exited successfully,
// (false, nil) when some workers exited cleanly but others are still running
// or when ctx's deadline elapsed first, and (false, err) when a worker
// failed or ctx was cancelled outright. A deadline on ctx is the poll
// timeout; elapsing it is not an error.
//
// On the first failed exit the group designates that worker as the failure,
// delivers one termination request to every survivor, waits for them all to
// exit and then classifies the designated failure: a message on the worker's
// failure channel outranks everything, then death by signal, then the plain
// exit status. Extended detail recovered from the error-report store is
// appended to the message. A failed group is terminal; every later Join
// returns the same *WorkerError.
func (g *Group) Join(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.failure != nil {
		g.mu.Unlock()
		return false, g.failure
	}
	if len(g.remaining) == 0 {
		g.mu.Unlock()
		return true, nil
	}
	g.mu.Unlock()

	var first int
	select {
	case first = <-g.exits:
	case <-g.settled:
		return g.settledResult()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, nil
		}
		return false, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failure != nil {
		return false, g.failure
	}

	ready := []int{first}
	for drained := false; !drained; {
		select {
		case idx := <-g.exits:
			ready = append(ready, idx)
		default:
			drained = true
		}
	}

	// Scan in arrival order. Clean exits shrink the group; the first
	// non-zero exit wins the designation and stops the scan.
	var failed *worker
	for _, idx := range ready {
		w := g.remaining[idx]
		if w == nil {
			continue
		}
		if w.success() {
			delete(g.remaining, idx)
			g.emit(EventExited, w.index, w.pid, SourceSystem, "exit status 0", nil)
			continue
		}
		failed = w
		break
	}

	if failed == nil {
		if len(g.remaining) == 0 {
			g.settle()
			g.emit(EventJoined, -1, 0, SourceSystem, "all workers exited", nil)
			return true, nil
		}
		return false, nil
	}

	delete(g.remaining, failed.index)
	// The cascade runs to completion regardless of the caller's context:
	// no worker may outlive the failure.
	_ = g.terminateLocked(context.Background())
	werr := g.classify(failed)
	g.failure = werr
	g.settle()
	g.emit(EventFailed, failed.index, failed.pid, SourceSystem, werr.Error(), werr)
	return false, werr
}

// Wait supervises the group until it settles: nil once every worker has
// exited successfully, the designated *WorkerError if the group failed, or
// ctx's error after terminating the group when ctx ends first.
func (g *Group) Wait(ctx context.Context) error {
	for {
		done, err := g.Join(ctx)
		if done {
			return nil
		}
		var werr *WorkerError
		if errors.As(err, &werr) {
			return err
		}
		if err == nil && ctx.Err() == nil {
			continue
		}
		_ = g.Terminate(context.Background())
		if err == nil {
			err = ctx.Err()
		}
		return err
	}
}

// Terminate stops the group outright: every remaining worker receives the
// single termination request and is awaited. Workers stopped this way are
// not classified as failures; a later Join reports the group as joined.
// Terminate is idempotent and may be called while another goroutine is
// blocked in Join.
func (g *Group) Terminate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminateLocked(ctx)
}

// terminateLocked delivers one termination request per remaining worker and
// reaps them. The watcher goroutines own Wait, so reaping is waiting on each
// sentinel. Callers hold g.mu.
func (g *Group) terminateLocked(ctx context.Context) error {
	for _, w := range g.workers {
		if _, live := g.remaining[w.index]; !live {
			continue
		}
		g.emit(EventTerminating, w.index, w.pid, SourceSystem, "", nil)
		if err := w.terminate(); err != nil {
			g.emit(EventLog, w.index, w.pid, SourceSystem, err.Error(), err)
		}
	}
	for _, w := range g.workers {
		if _, live := g.remaining[w.index]; !live {
			continue
		}
		select {
		case <-w.done:
			delete(g.remaining, w.index)
			g.emit(EventTerminated, w.index, w.pid, SourceSystem, "", nil)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(g.remaining) == 0 {
		g.settle()
	}
	return nil
}

// classify builds the WorkerError for the designated failure. The failure
// channel outranks the exit status; the error-report store contributes
// extended detail for every kind.
func (g *Group) classify(w *worker) *WorkerError {
	werr := &WorkerError{Index: w.index, Pid: w.pid}
	if msg, ok := w.failureMessage(); ok {
		werr.Kind = KindRaised
		werr.Msg = msg
	} else if sig, ok := w.signal(); ok {
		werr.Kind = KindSignaled
		werr.Signal = signalName(sig)
	} else {
		werr.Kind = KindExited
		werr.ExitCode = w.exitCode()
		if w.procState() == nil && w.waitErr != nil {
			werr.Msg = w.waitErr.Error()
		}
	}
	if report := g.store.Get(w.pid); report != "" {
		if werr.Msg != "" {
			werr.Msg += "\n"
		}
		werr.Msg += report
	}
	return werr
}

func (g *Group) settle() {
	g.settleOnce.Do(func() { close(g.settled) })
}

func (g *Group) settledResult() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failure != nil {
		return false, g.failure
	}
	return true, nil
}

// Pids returns the process ID of every worker in index order.
func (g *Group) Pids() []int {
	pids := make([]int, len(g.workers))
	for i, w := range g.workers {
		pids[i] = w.pid
	}
	return pids
}

// WorkerState describes where a worker is in its lifecycle.
type WorkerState string

const (
	StateRunning    WorkerState = "running"
	StateSucceeded  WorkerState = "succeeded"
	StateFailed     WorkerState = "failed"
	StateTerminated WorkerState = "terminated"
)

// WorkerStatus is a point-in-time view of one worker. ExitCode is -1 while
// the worker is running or when it died signaled.
type WorkerStatus struct {
	Index    int         `json:"index"`
	Pid      int         `json:"pid"`
	State    WorkerState `json:"state"`
	ExitCode int         `json:"exitCode"`
	Signal   string      `json:"signal,omitempty"`
}

// Snapshot reports the current state of every worker in index order.
func (g *Group) Snapshot() []WorkerStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]WorkerStatus, 0, len(g.workers))
	for _, w := range g.workers {
		st := WorkerStatus{Index: w.index, Pid: w.pid, ExitCode: -1}
		select {
		case <-w.done:
		default:
			st.State = StateRunning
			out = append(out, st)
			continue
		}
		if w.success() {
			st.State = StateSucceeded
			st.ExitCode = 0
			out = append(out, st)
			continue
		}
		if sig, ok := w.signal(); ok {
			st.Signal = signalName(sig)
		}
		st.ExitCode = w.exitCode()
		if w.terminated {
			st.State = StateTerminated
		} else {
			st.State = StateFailed
		}
		out = append(out, st)
	}
	return out
}
