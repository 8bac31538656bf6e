package cohort

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Environment variables that make up the worker contract. The parent sets
// them for every worker it spawns; foreign commands launched with
// StartCommand receive the subset that does not require the in-process
// wrapper (index, group size and the report directory).
const (
	// EnvEntry names the registered entry point a spawned worker must run.
	// Its presence is what distinguishes a worker from the parent.
	EnvEntry = "COHORT_WORKER_ENTRY"
	// EnvIndex is the worker's zero-based index within the group.
	EnvIndex = "COHORT_WORKER_INDEX"
	// EnvProcs is the total number of workers in the group.
	EnvProcs = "COHORT_WORKER_NPROCS"
	// EnvFailureFD is the file descriptor number of the write end of the
	// worker's failure channel.
	EnvFailureFD = "COHORT_FAILURE_FD"
	// EnvReportDir is the directory where workers record extended failure
	// reports, keyed by pid.
	EnvReportDir = "COHORT_REPORT_DIR"
)

// EntryFunc is the shape of a worker entry point. The context is cancelled
// when the worker receives a cooperative interrupt (SIGINT); index is the
// worker's zero-based position in the group.
type EntryFunc func(ctx context.Context, index int, args []string) error

var (
	entriesMu sync.RWMutex
	entries   = make(map[string]EntryFunc)
)

// Register makes an entry point available for spawning under the given name.
// It is intended to be called from init or early in main, before Init, and
// panics on an empty name, a nil function or a duplicate registration.
func Register(name string, fn EntryFunc) {
	if name == "" {
		panic("cohort: Register called with an empty entry name")
	}
	if fn == nil {
		panic(fmt.Sprintf("cohort: Register called with a nil function for entry %q", name))
	}
	entriesMu.Lock()
	defer entriesMu.Unlock()
	if _, dup := entries[name]; dup {
		panic(fmt.Sprintf("cohort: Register called twice for entry %q", name))
	}
	entries[name] = fn
}

func lookupEntry(name string) EntryFunc {
	entriesMu.RLock()
	defer entriesMu.RUnlock()
	return entries[name]
}

func entryNames() []string {
	entriesMu.RLock()
	defer entriesMu.RUnlock()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Init dispatches worker processes and must be the first call in main, after
// all Register calls. In the parent it returns immediately. In a spawned
// worker it runs the named entry point under the wrapper and exits the
// process with the wrapper's status, so it never returns.
func Init() {
	name := os.Getenv(EnvEntry)
	if name == "" {
		return
	}
	os.Exit(runWorker(name, os.Args[1:]))
}
