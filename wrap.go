package cohort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"

	"github.com/Paintersrp/cohort/errreport"
)

// maxFailureBytes bounds what a worker writes onto the failure channel. The
// channel is a pipe with a finite kernel buffer and the parent may not read
// it until after the worker exits, so the payload must fit without blocking.
// The untruncated detail always goes to the error-report store.
const maxFailureBytes = 32 << 10

// runWorker is the child-process side of the group: it binds the worker to
// its parent, runs the entry point under a cooperative-interrupt context and
// converts the outcome into an exit status, delivering failure detail over
// the failure channel and the error-report store on the way out.
func runWorker(name string, args []string) int {
	index, err := strconv.Atoi(os.Getenv(EnvIndex))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cohort: worker %q started with a malformed index: %v\n", name, err)
		return 1
	}

	setParentDeathSignal()

	sink := failureSink()
	store := errreport.NewStore(os.Getenv(EnvReportDir))

	fn := lookupEntry(name)
	if fn == nil {
		reportFailure(sink, store, fmt.Sprintf("entry point %q is not registered in this binary (registered: %v)", name, entryNames()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = invoke(ctx, fn, index, args)
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Interrupted and acknowledged the interrupt. Not a failure.
		return 0
	}
	reportFailure(sink, store, err.Error())
	return 1
}

// invoke runs the entry point and converts a panic into an error carrying
// the goroutine stack.
func invoke(ctx context.Context, fn EntryFunc, index int, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn(ctx, index, args)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.value, e.stack)
}

// failureSink opens the write end of the failure channel handed down by the
// parent, or returns nil when the worker was started without one.
func failureSink() *os.File {
	raw := os.Getenv(EnvFailureFD)
	if raw == "" {
		return nil
	}
	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 3 {
		fmt.Fprintf(os.Stderr, "cohort: ignoring malformed %s=%q\n", EnvFailureFD, raw)
		return nil
	}
	return os.NewFile(uintptr(fd), "cohort-failure-sink")
}

// reportFailure writes the failure detail once onto the channel, bounded, and
// records the full text in the error-report store. Both writes are
// best-effort: the worker is about to exit non-zero either way and the parent
// can still classify the failure from the exit status alone.
func reportFailure(sink *os.File, store *errreport.Store, detail string) {
	if sink != nil {
		msg := detail
		if len(msg) > maxFailureBytes {
			msg = msg[:maxFailureBytes]
		}
		_, _ = sink.Write([]byte(msg))
		_ = sink.Close()
	}
	if err := store.Record(os.Getpid(), detail); err != nil {
		fmt.Fprintf(os.Stderr, "cohort: record failure report: %v\n", err)
	}
}
