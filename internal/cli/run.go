package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cohort"
	httpapi "github.com/Paintersrp/cohort/internal/api/http"
	"github.com/Paintersrp/cohort/internal/config"
	"github.com/Paintersrp/cohort/internal/hooks"
	"github.com/Paintersrp/cohort/internal/logmux"
	"github.com/Paintersrp/cohort/internal/metrics"
	"github.com/Paintersrp/cohort/internal/tui"
)

const eventBuffer = 256

func newRunCmd(ctx *context) *cobra.Command {
	var (
		procs   int
		capture bool
		useAPI  bool
		apiAddr string
		useTUI  bool
	)

	cmd := &cobra.Command{
		Use:   "run [-- command args...]",
		Short: "Launch a worker group and supervise it to completion",
		Long: "Launch a worker group from the job definition, or from an ad-hoc " +
			"command given after --, and block until every worker exits. One " +
			"failed worker tears the whole group down and run reports its failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				job  *config.Job
				argv []string
				opts cohort.Options
				name string
			)
			if len(args) > 0 {
				argv = args
				opts = cohort.Options{Procs: 1, Capture: capture}
				name = argv[0]
			} else {
				loaded, err := config.Load(*ctx.jobFile)
				if err != nil {
					return err
				}
				job = loaded
				argv = job.Command
				opts, err = job.Options()
				if err != nil {
					return err
				}
				name = job.Job.Name
			}
			if cmd.Flags().Changed("procs") {
				opts.Procs = procs
			}
			if cmd.Flags().Changed("capture") {
				opts.Capture = capture
			}
			if useTUI && !opts.Capture {
				// The dashboard renders worker output itself; inherited
				// streams would scribble over the terminal.
				opts.Capture = true
			}

			runner := hooks.New()
			if job != nil && job.Hooks != nil {
				res := runner.Run(cmd.Context(), hooks.Hook{
					Phase:   hooks.PhasePreLaunch,
					Command: job.Hooks.PreLaunch,
					Env:     job.Env,
					Dir:     job.ResolvedWorkdir,
					Timeout: job.HookTimeout(),
				})
				printHookResult(cmd, res)
				if res.Err != nil {
					return fmt.Errorf("preLaunch hook: %w", res.Err)
				}
			}

			events := make(chan cohort.Event, eventBuffer)
			opts.Events = events

			group, err := cohort.StartCommand(argv, opts)
			if err != nil {
				return err
			}
			metrics.GroupLaunched(opts.Procs)
			started := time.Now()
			ctx.setGroup(group, name, opts.Procs)
			defer ctx.clearGroup(group)

			runCtx, cancelRun := stdcontext.WithCancel(cmd.Context())
			defer cancelRun()

			if useAPI {
				server, err := httpapi.NewServer(httpapi.Config{
					Addr:       apiAddr,
					Controller: &groupController{ctx: ctx},
				})
				if err != nil {
					_ = group.Terminate(stdcontext.Background())
					return err
				}
				go func() {
					if err := server.Run(runCtx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "api server: %v\n", err)
					}
				}()
			}

			mux := logmux.New(eventBuffer)
			mux.Add(events)

			var finish func() error
			if useTUI {
				finish = startTUI(runCtx, group, mux)
			} else {
				finish = startPrinter(cmd, mux)
			}

			joinErr := group.Wait(runCtx)

			// The group has settled; release the event pipeline and wait for
			// the consumer to finish the backlog so failure detail is not
			// interleaved with the error line.
			close(events)
			mux.Close()
			if err := finish(); err != nil && joinErr == nil {
				joinErr = err
			}

			metrics.ObserveJoinDuration(time.Since(started))
			accountForOutcome(group, joinErr)

			if job != nil && job.Hooks != nil {
				// The post-join hook always runs, even for a failed group, so
				// it gets a context that survives Ctrl+C.
				res := runner.Run(stdcontext.Background(), hooks.Hook{
					Phase:   hooks.PhasePostJoin,
					Command: job.Hooks.PostJoin,
					Env:     job.Env,
					Dir:     job.ResolvedWorkdir,
					Timeout: job.HookTimeout(),
				})
				printHookResult(cmd, res)
				if res.Err != nil && joinErr == nil {
					joinErr = fmt.Errorf("postJoin hook: %w", res.Err)
				}
			}
			return joinErr
		},
	}

	cmd.Flags().IntVar(&procs, "procs", 1, "Number of workers to launch (overrides the job file)")
	cmd.Flags().BoolVar(&capture, "capture", false, "Capture worker output as log events")
	cmd.Flags().BoolVar(&useAPI, "api", false, "Serve the control API while the group runs")
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "Control API listen address (default 127.0.0.1:7663)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show the interactive group dashboard")

	return cmd
}

// startPrinter streams muxed events to the terminal. The returned function
// blocks until the mux output has drained.
func startPrinter(cmd *cobra.Command, mux *logmux.Mux) func() error {
	printer := newEventPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range mux.Output() {
			printer.print(evt)
		}
	}()
	return func() error {
		<-done
		return nil
	}
}

// startTUI drives the dashboard off the muxed event stream. Quitting the
// dashboard requests group termination; the returned function stops the UI
// and reports any terminal error.
func startTUI(ctx stdcontext.Context, group *cohort.Group, mux *logmux.Mux) func() error {
	ui := tui.New(tui.WithOnQuit(func() {
		go group.Terminate(stdcontext.Background())
	}))

	go func() {
		defer ui.CloseEvents()
		for evt := range mux.Output() {
			select {
			case ui.EventSink() <- evt:
			default:
			}
		}
	}()

	uiErr := make(chan error, 1)
	go func() {
		uiErr <- ui.Run(ctx)
	}()

	return func() error {
		ui.Stop()
		return <-uiErr
	}
}

// accountForOutcome updates the worker gauges and failure counters once the
// group has settled.
func accountForOutcome(group *cohort.Group, err error) {
	metrics.WorkersReleased(len(group.Snapshot()))
	var werr *cohort.WorkerError
	if errors.As(err, &werr) {
		metrics.WorkerFailed(werr.Kind.String())
	}
}

func printHookResult(cmd *cobra.Command, res hooks.Result) {
	if len(res.Command) == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "hook %s: %s\n", res.Phase, hooks.JoinCommand(res.Command))
	for _, entry := range res.Logs {
		out := cmd.OutOrStdout()
		if entry.Stream == hooks.StreamStderr {
			out = cmd.ErrOrStderr()
		}
		fmt.Fprintf(out, "hook %s: %s\n", res.Phase, entry.Message)
	}
	if res.TimedOut {
		fmt.Fprintf(cmd.ErrOrStderr(), "hook %s: timed out\n", res.Phase)
	}
}
