// Package hooks runs the commands a job configures around the launch
// lifecycle: a pre-launch hook before any worker spawns and a post-join hook
// after the group has settled, successfully or not.
package hooks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// Phases a hook can run in.
const (
	PhasePreLaunch = "preLaunch"
	PhasePostJoin  = "postJoin"
)

// Streams hook output lines are attributed to.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Hook describes one command to run.
type Hook struct {
	Phase   string
	Command []string
	Env     map[string]string
	Dir     string
	Timeout time.Duration
}

// Result reports what happened when a hook ran. Logs holds the command's
// output lines in arrival order.
type Result struct {
	Phase    string
	Command  []string
	Logs     []Log
	Err      error
	TimedOut bool
}

// Log is one line of hook output.
type Log struct {
	Message string
	Stream  string
}

// Runner executes hooks. The zero value is not usable; construct with New.
type Runner struct {
	now func() time.Time
}

func New() *Runner {
	return &Runner{now: time.Now}
}

// Run executes the hook and collects its output. A hook with no command is a
// no-op. The hook's timeout, when set, bounds the run; expiry is reported via
// TimedOut rather than a bare context error so callers can distinguish a slow
// hook from an interrupted launch.
func (r *Runner) Run(ctx context.Context, hook Hook) Result {
	res := Result{Phase: hook.Phase}
	if len(hook.Command) == 0 {
		return res
	}
	res.Command = append(res.Command, hook.Command...)
	if ctx == nil {
		ctx = context.Background()
	}
	if hook.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hook.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, hook.Command[0], hook.Command[1:]...)
	cmd.Env = mergeEnv(os.Environ(), hook.Env)
	if hook.Dir != "" {
		cmd.Dir = hook.Dir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		res.Err = err
		return res
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		res.Err = err
		return res
	}

	if err := cmd.Start(); err != nil {
		res.Err = err
		return res
	}

	logsCh := make(chan Log, 16)
	var wg sync.WaitGroup

	scan := func(r io.Reader, stream string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			logsCh <- Log{Message: scanner.Text(), Stream: stream}
		}
	}

	wg.Add(2)
	go scan(stdout, StreamStdout)
	go scan(stderr, StreamStderr)

	go func() {
		wg.Wait()
		close(logsCh)
	}()

	waitErr := cmd.Wait()

	for entry := range logsCh {
		res.Logs = append(res.Logs, entry)
	}

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			res.Err = context.DeadlineExceeded
			return res
		}
		if errors.Is(ctx.Err(), context.Canceled) && !errors.Is(waitErr, context.Canceled) {
			res.Err = context.Canceled
			return res
		}
		res.Err = waitErr
		return res
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			res.TimedOut = true
		}
		res.Err = err
	}

	return res
}

func mergeEnv(base []string, extra map[string]string) []string {
	env := append([]string(nil), base...)
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}

// JoinCommand renders a command line for display, quoting arguments that
// contain whitespace or quotes.
func JoinCommand(cmd []string) string {
	if len(cmd) == 0 {
		return ""
	}
	parts := make([]string, len(cmd))
	copy(parts, cmd)
	for i, part := range parts {
		if strings.ContainsAny(part, " \t\n\"") {
			parts[i] = fmt.Sprintf("%q", part)
		}
	}
	return strings.Join(parts, " ")
}
