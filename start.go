package cohort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/Paintersrp/cohort/errreport"
)

// StartMethod selects how worker processes are created. Only spawning fresh
// processes is supported; the type exists so configuration surfaces can name
// the method explicitly and be told when they ask for one that does not
// exist here.
type StartMethod string

// MethodSpawn starts each worker as a freshly executed process.
const MethodSpawn StartMethod = "spawn"

func (m StartMethod) validate() error {
	switch m {
	case "", MethodSpawn:
		return nil
	default:
		return fmt.Errorf("unsupported start method %q (only %q is available)", string(m), string(MethodSpawn))
	}
}

// Options configure a group launch.
type Options struct {
	// Procs is the number of workers to launch. It must be at least 1.
	Procs int
	// Args is passed to every worker's entry point. Command groups take
	// their arguments from argv instead and ignore Args.
	Args []string
	// Env adds or overrides environment variables for every worker.
	Env map[string]string
	// Dir is the working directory for workers; empty means inherit.
	Dir string
	// Daemon hard-ties workers to the parent's lifetime where the platform
	// supports it, instead of the default cooperative interrupt binding.
	Daemon bool
	// Method selects the process start method. Empty means MethodSpawn.
	Method StartMethod
	// Events, when non-nil, receives lifecycle and log events. Delivery is
	// non-blocking; size the buffer for the expected volume.
	Events chan<- Event
	// Capture redirects worker stdout and stderr into log events instead
	// of inheriting the parent's streams.
	Capture bool
}

func checkOptions(opts Options) error {
	if opts.Procs < 1 {
		return fmt.Errorf("procs must be at least 1, got %d", opts.Procs)
	}
	return opts.Method.validate()
}

// Start launches opts.Procs workers running the named registered entry point
// and returns without waiting for them. The caller drives the group with
// Join or Wait. If any worker fails to spawn, the ones already running are
// terminated before Start returns the error.
func Start(entry string, opts Options) (*Group, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	if lookupEntry(entry) == nil {
		return nil, fmt.Errorf("entry point %q is not registered", entry)
	}
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	g, err := newGroup(entry, opts)
	if err != nil {
		return nil, err
	}
	for i := 0; i < opts.Procs; i++ {
		cmd := exec.Command(self, opts.Args...)
		cmd.Dir = opts.Dir
		cmd.Env = append(workerEnv(opts, i, g.store.Dir()), EnvEntry+"="+entry)
		if opts.Daemon {
			configureDaemon(cmd)
		}
		if err := g.addWorker(cmd, i, true); err != nil {
			g.abort()
			return nil, err
		}
	}
	return g, nil
}

// StartCommand launches opts.Procs workers that each run the given command
// instead of a registered entry point. Foreign commands do not carry the
// wrapper, so their failure channel stays empty and failures are classified
// from the exit status alone; the index, group size and report directory are
// still exported for commands that want them.
func StartCommand(argv []string, opts Options) (*Group, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, errors.New("command must not be empty")
	}

	g, err := newGroup(argv[0], opts)
	if err != nil {
		return nil, err
	}
	for i := 0; i < opts.Procs; i++ {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Dir = opts.Dir
		cmd.Env = workerEnv(opts, i, g.store.Dir())
		if opts.Daemon {
			configureDaemon(cmd)
		}
		if err := g.addWorker(cmd, i, false); err != nil {
			g.abort()
			return nil, err
		}
	}
	return g, nil
}

// Run launches the group and supervises it to completion. See Group.Wait
// for the result contract.
func Run(ctx context.Context, entry string, opts Options) error {
	g, err := Start(entry, opts)
	if err != nil {
		return err
	}
	return g.Wait(ctx)
}

// RunCommand is Run for command workers.
func RunCommand(ctx context.Context, argv []string, opts Options) error {
	g, err := StartCommand(argv, opts)
	if err != nil {
		return err
	}
	return g.Wait(ctx)
}

// Spawn runs the group like Run but, instead of rejecting a start method
// other than MethodSpawn, warns on stderr and proceeds with MethodSpawn.
func Spawn(ctx context.Context, entry string, opts Options) error {
	if err := opts.Method.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "cohort: unsupported start method %q, continuing with %q\n", string(opts.Method), string(MethodSpawn))
	}
	opts.Method = MethodSpawn
	return Run(ctx, entry, opts)
}

// newGroup allocates the group and configures its error-report namespace.
// The namespace must be unique per launch so concurrent groups in the same
// parent never read each other's reports.
func newGroup(entry string, opts Options) (*Group, error) {
	id := uuid.NewString()
	store, err := errreport.Configure(fmt.Sprintf("%d-%.8s", time.Now().UnixMilli(), id))
	if err != nil {
		return nil, fmt.Errorf("configure error reports: %w", err)
	}
	return &Group{
		ID:        id,
		Entry:     entry,
		exits:     make(chan int, opts.Procs),
		remaining: make(map[int]*worker, opts.Procs),
		settled:   make(chan struct{}),
		store:     store,
		events:    opts.Events,
		capture:   opts.Capture,
	}, nil
}

func (g *Group) addWorker(cmd *exec.Cmd, index int, withSink bool) error {
	w, err := g.startWorker(cmd, index, withSink)
	if err != nil {
		return err
	}
	g.workers = append(g.workers, w)
	g.remaining[index] = w
	g.emit(EventSpawned, w.index, w.pid, SourceSystem, "", nil)
	return nil
}

// abort tears down a partially spawned group after a launch error.
func (g *Group) abort() {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.terminateLocked(context.Background())
}

func workerEnv(opts Options, index int, reportDir string) []string {
	env := os.Environ()
	if opts.Env != nil {
		overrides := make([]string, 0, len(opts.Env))
		for k, v := range opts.Env {
			overrides = append(overrides, fmt.Sprintf("%s=%s", k, v))
		}
		env = append(env, overrides...)
	}
	env = append(env,
		fmt.Sprintf("%s=%d", EnvIndex, index),
		fmt.Sprintf("%s=%d", EnvProcs, opts.Procs),
		fmt.Sprintf("%s=%s", EnvReportDir, reportDir),
	)
	return env
}
