// Package cli implements the cohort command line interface: launching and
// supervising worker groups from a job manifest, validating manifests and
// querying a running launcher over its control API.
package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cohort"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var jobFile string

	root := &cobra.Command{
		Use:   "cohort",
		Short: "Process-group launcher and supervisor",
	}

	root.PersistentFlags().
		StringVarP(&jobFile, "file", "f", "job.yaml", "Path to job definition")

	ctx := &context{jobFile: &jobFile}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newValidateCmd(ctx))
	root.AddCommand(newStatusCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. A join that failed because a worker exited
// non-zero propagates that worker's exit code; every other error exits 1.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var werr *cohort.WorkerError
	if errors.As(err, &werr) && werr.Kind == cohort.KindExited && werr.ExitCode > 0 {
		return werr.ExitCode
	}
	return 1
}

type context struct {
	jobFile *string

	mu        sync.RWMutex
	group     *cohort.Group
	jobName   string
	procs     int
	startedAt time.Time
}

func (c *context) setGroup(g *cohort.Group, jobName string, procs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = g
	c.jobName = jobName
	c.procs = procs
	c.startedAt = time.Now()
}

func (c *context) clearGroup(g *cohort.Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group == g {
		c.group = nil
	}
}

func (c *context) currentGroup() (*cohort.Group, string, int, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.group, c.jobName, c.procs, c.startedAt
}
