package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cohort/internal/config"
	"github.com/Paintersrp/cohort/internal/hooks"
	"github.com/Paintersrp/cohort/internal/resources"
)

func newValidateCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a job definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := config.Load(*ctx.jobFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s is valid\n", job.Job.Name)
			fmt.Fprintf(out, "  command: %s\n", hooks.JoinCommand(job.Command))
			fmt.Fprintf(out, "  procs:   %d\n", job.Procs)
			fmt.Fprintf(out, "  workdir: %s\n", job.ResolvedWorkdir)
			if job.Resources != nil {
				cpu := resources.FormatCPU(job.Resources.CPU)
				mem := resources.FormatMemory(job.Resources.Memory)
				if cpu != "" || mem != "" {
					fmt.Fprintf(out, "  resources: cpu=%s memory=%s\n", orDash(cpu), orDash(mem))
				}
			}
			if job.Hooks != nil {
				if len(job.Hooks.PreLaunch) > 0 {
					fmt.Fprintf(out, "  preLaunch: %s\n", hooks.JoinCommand(job.Hooks.PreLaunch))
				}
				if len(job.Hooks.PostJoin) > 0 {
					fmt.Fprintf(out, "  postJoin:  %s\n", hooks.JoinCommand(job.Hooks.PostJoin))
				}
			}
			return nil
		},
	}
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
