package cohort

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestRunAllWorkersSucceed(t *testing.T) {
	if err := Run(testContext(t), "ok", Options{Procs: 3, Method: MethodSpawn}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunDaemonWorkersSucceed(t *testing.T) {
	if err := Run(testContext(t), "ok", Options{Procs: 2, Daemon: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestJoinIsIdempotentAfterSuccess(t *testing.T) {
	g, err := Start("ok", Options{Procs: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := testContext(t)
	for {
		done, err := g.Join(ctx)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if done {
			break
		}
	}
	for i := 0; i < 3; i++ {
		done, err := g.Join(ctx)
		if !done || err != nil {
			t.Fatalf("join after joined = (%v, %v), want (true, nil)", done, err)
		}
	}
}

func TestRaisedFailureCarriesMessage(t *testing.T) {
	err := Run(testContext(t), "boom", Options{Procs: 2})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("want *WorkerError, got %v", err)
	}
	if werr.Kind != KindRaised {
		t.Fatalf("kind = %s, want raised", werr.Kind)
	}
	if !strings.Contains(werr.Msg, "boom") {
		t.Fatalf("failure message %q does not carry the worker error", werr.Msg)
	}
	if werr.Index != 0 && werr.Index != 1 {
		t.Fatalf("designated worker index = %d", werr.Index)
	}
	if werr.Pid <= 0 {
		t.Fatalf("designated worker pid = %d", werr.Pid)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Error() = %q, want the worker message", err.Error())
	}
}

func TestPanicBecomesRaisedFailureWithStack(t *testing.T) {
	err := Run(testContext(t), "panic", Options{Procs: 1})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("want *WorkerError, got %v", err)
	}
	if werr.Kind != KindRaised {
		t.Fatalf("kind = %s, want raised", werr.Kind)
	}
	if !strings.Contains(werr.Msg, "panic: kaboom") {
		t.Fatalf("failure message %q does not carry the panic value", werr.Msg)
	}
	if !strings.Contains(werr.Msg, "goroutine") {
		t.Fatalf("failure message %q does not carry the stack", werr.Msg)
	}
}

func TestExitFailureCarriesStatus(t *testing.T) {
	err := Run(testContext(t), "exit7", Options{Procs: 1})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("want *WorkerError, got %v", err)
	}
	if werr.Kind != KindExited {
		t.Fatalf("kind = %s, want exited", werr.Kind)
	}
	if werr.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7", werr.ExitCode)
	}
	if !strings.Contains(err.Error(), "exited with status 7") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestFailureTerminatesSurvivorsBeforeJoinReturns(t *testing.T) {
	events := make(chan Event, 256)
	g, err := Start("failfirst", Options{Procs: 3, Events: events})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	start := time.Now()
	err = g.Wait(testContext(t))
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("want *WorkerError, got %v", err)
	}
	if werr.Index != 0 {
		t.Fatalf("designated worker = %d, want 0", werr.Index)
	}
	// The survivors sleep for a minute; a join that waited for them to
	// finish on their own would blow well past this.
	if elapsed := time.Since(start); elapsed > 20*time.Second {
		t.Fatalf("join took %v, survivors were not terminated", elapsed)
	}

	snap := g.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d workers, want 3", len(snap))
	}
	if snap[0].State != StateFailed {
		t.Fatalf("worker 0 state = %s, want failed", snap[0].State)
	}
	for _, st := range snap[1:] {
		if st.State != StateTerminated {
			t.Fatalf("worker %d state = %s, want terminated", st.Index, st.State)
		}
	}

	var spawned, terminated int
	var sawFailed bool
	for _, ev := range drainEvents(events) {
		switch ev.Type {
		case EventSpawned:
			spawned++
		case EventTerminated:
			terminated++
		case EventFailed:
			sawFailed = true
		}
	}
	if spawned != 3 {
		t.Fatalf("saw %d spawned events, want 3", spawned)
	}
	if terminated != 2 {
		t.Fatalf("saw %d terminated events, want 2", terminated)
	}
	if !sawFailed {
		t.Fatal("no failed event was emitted")
	}
}

func TestJoinAfterFailureReturnsSameError(t *testing.T) {
	g, err := Start("boom", Options{Procs: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := testContext(t)
	var first error
	for {
		done, err := g.Join(ctx)
		if err != nil {
			first = err
			break
		}
		if done {
			t.Fatal("group joined cleanly, want a failure")
		}
	}
	for i := 0; i < 3; i++ {
		done, err := g.Join(ctx)
		if done {
			t.Fatal("failed group reported as joined")
		}
		if err != first {
			t.Fatalf("join after failure returned %v, want the original %v", err, first)
		}
	}
}

func TestDeadlineActsAsPollTimeout(t *testing.T) {
	g, err := Start("hang", Options{Procs: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = g.Terminate(cleanupCtx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done, err := g.Join(ctx)
	if done || err != nil {
		t.Fatalf("join with elapsed deadline = (%v, %v), want (false, nil)", done, err)
	}

	if err := g.Terminate(testContext(t)); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	done, err = g.Join(testContext(t))
	if !done || err != nil {
		t.Fatalf("join after terminate = (%v, %v), want (true, nil)", done, err)
	}
}

func TestCancelledContextSurfacesError(t *testing.T) {
	g, err := Start("hang", Options{Procs: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = g.Terminate(cleanupCtx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done, err := g.Join(ctx)
	if done || !errors.Is(err, context.Canceled) {
		t.Fatalf("join with cancelled ctx = (%v, %v), want (false, context.Canceled)", done, err)
	}
}

func TestWaitTerminatesGroupOnCancel(t *testing.T) {
	g, err := Start("hang", Options{Procs: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	if err := g.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("wait = %v, want context.Canceled", err)
	}
	for _, st := range g.Snapshot() {
		if st.State == StateRunning {
			t.Fatalf("worker %d still running after cancelled wait", st.Index)
		}
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	g, err := Start("hang", Options{Procs: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := g.Terminate(testContext(t)); err != nil {
			t.Fatalf("terminate #%d: %v", i+1, err)
		}
	}
	done, err := g.Join(testContext(t))
	if !done || err != nil {
		t.Fatalf("join after terminate = (%v, %v), want (true, nil)", done, err)
	}
	for _, st := range g.Snapshot() {
		if st.State != StateTerminated {
			t.Fatalf("worker %d state = %s, want terminated", st.Index, st.State)
		}
	}
}

func TestPidsAreStableAndOrdered(t *testing.T) {
	g, err := Start("ok", Options{Procs: 3})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pids := g.Pids()
	if len(pids) != 3 {
		t.Fatalf("pids = %v, want 3 entries", pids)
	}
	seen := make(map[int]bool)
	for _, pid := range pids {
		if pid <= 0 || seen[pid] {
			t.Fatalf("bad pid set %v", pids)
		}
		seen[pid] = true
	}
	if err := g.Wait(testContext(t)); err != nil {
		t.Fatalf("wait: %v", err)
	}
	after := g.Pids()
	for i := range pids {
		if pids[i] != after[i] {
			t.Fatalf("pids changed across join: %v then %v", pids, after)
		}
	}
}

func TestWorkerIndexesAndArgsReachEntry(t *testing.T) {
	dir := t.TempDir()
	if err := Run(testContext(t), "writeindex", Options{Procs: 3, Args: []string{dir}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < 3; i++ {
		data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(i)))
		if err != nil {
			t.Fatalf("worker %d never wrote its index: %v", i, err)
		}
		if string(data) != strconv.Itoa(i) {
			t.Fatalf("worker %d wrote %q", i, data)
		}
	}
}

func TestEnvOverridesReachWorkers(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		Procs: 2,
		Args:  []string{dir},
		Env:   map[string]string{"COHORT_TEST_FLAVOR": "mint"},
	}
	if err := Run(testContext(t), "envprobe", opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < 2; i++ {
		data, err := os.ReadFile(filepath.Join(dir, "env-"+strconv.Itoa(i)))
		if err != nil {
			t.Fatalf("worker %d wrote no env probe: %v", i, err)
		}
		if string(data) != "mint" {
			t.Fatalf("worker %d saw %q, want %q", i, data, "mint")
		}
	}
}

func TestCaptureTurnsOutputIntoEvents(t *testing.T) {
	events := make(chan Event, 256)
	err := Run(testContext(t), "say", Options{Procs: 2, Capture: true, Events: events})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The scanners may still be flushing right after the join returns.
	var stdoutLines, stderrLines int
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (stdoutLines < 2 || stderrLines < 2) {
		for _, ev := range drainEvents(events) {
			if ev.Type != EventLog {
				continue
			}
			switch ev.Source {
			case SourceStdout:
				if strings.Contains(ev.Message, "hello from worker") {
					stdoutLines++
				}
			case SourceStderr:
				if strings.Contains(ev.Message, "grumbling from worker") {
					stderrLines++
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stdoutLines != 2 || stderrLines != 2 {
		t.Fatalf("captured %d stdout and %d stderr lines, want 2 and 2", stdoutLines, stderrLines)
	}
}

func TestExtendedReportAppendedToExitFailure(t *testing.T) {
	err := Run(testContext(t), "reportonly", Options{Procs: 1})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("want *WorkerError, got %v", err)
	}
	if werr.Kind != KindExited || werr.ExitCode != 3 {
		t.Fatalf("classified as %s/%d, want exited/3", werr.Kind, werr.ExitCode)
	}
	if !strings.Contains(werr.Msg, "extended detail from worker") {
		t.Fatalf("report was not appended: %q", werr.Msg)
	}
}
