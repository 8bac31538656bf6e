package cohort

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// worker is the parent-side handle for one spawned process. It is created by
// its Group and mutated only by the goroutines started alongside it; the
// join engine reads the exit state after done has closed.
type worker struct {
	index int
	pid   int
	cmd   *exec.Cmd

	// done is the worker's sentinel, closed once Wait has returned and the
	// process state is available.
	done    chan struct{}
	waitErr error

	// failure carries the worker's one-shot failure message. The drain
	// goroutine closes it once the channel has been fully read; workers
	// started without a failure channel get it pre-closed.
	failure chan []byte

	termOnce   sync.Once
	terminated bool
}

// startWorker attaches the failure channel and log plumbing to cmd, starts
// it and launches the watcher goroutines. withSink is false for foreign
// commands, which cannot speak the failure-channel protocol.
func (g *Group) startWorker(cmd *exec.Cmd, index int, withSink bool) (*worker, error) {
	w := &worker{
		index:   index,
		cmd:     cmd,
		done:    make(chan struct{}),
		failure: make(chan []byte, 1),
	}

	var sinkR, sinkW *os.File
	if withSink {
		var err error
		sinkR, sinkW, err = os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("worker %d failure channel: %w", index, err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, sinkW)
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", EnvFailureFD, 3+len(cmd.ExtraFiles)-1))
	} else {
		close(w.failure)
	}

	var stdout, stderr io.ReadCloser
	if g.capture {
		var err error
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("worker %d stdout: %w", index, err)
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("worker %d stderr: %w", index, err)
		}
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		if sinkR != nil {
			_ = sinkR.Close()
			_ = sinkW.Close()
		}
		return nil, fmt.Errorf("start worker %d: %w", index, err)
	}
	w.pid = cmd.Process.Pid

	if withSink {
		// The child inherited the write end; only it may write.
		_ = sinkW.Close()
		go drainFailure(sinkR, w.failure)
	}
	if g.capture {
		go g.streamLogs(w, stdout, SourceStdout)
		go g.streamLogs(w, stderr, SourceStderr)
	}

	go func() {
		w.waitErr = cmd.Wait()
		close(w.done)
		g.exits <- w.index
	}()

	return w, nil
}

// drainFailure reads the worker's failure channel to EOF so the child can
// never block on a full pipe, and hands the payload to the join engine.
func drainFailure(r *os.File, out chan<- []byte) {
	defer close(out)
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return
	}
	out <- data
}

func (g *Group) streamLogs(w *worker, r io.Reader, source string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\n")
		g.emit(EventLog, w.index, w.pid, source, line, nil)
	}
}

// failureMessage returns the worker's one-shot failure payload. Callers must
// wait for the worker's sentinel first: once the child is gone the drain is
// guaranteed to finish, so the blocking read here is bounded.
func (w *worker) failureMessage() (string, bool) {
	data, ok := <-w.failure
	if !ok || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (w *worker) procState() *os.ProcessState {
	return w.cmd.ProcessState
}

func (w *worker) success() bool {
	st := w.procState()
	return st != nil && st.Success()
}

func (w *worker) exitCode() int {
	if st := w.procState(); st != nil {
		return st.ExitCode()
	}
	return -1
}
