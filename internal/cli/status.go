package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cohort/internal/api"
)

const defaultAPIAddr = "127.0.0.1:7663"

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display the state of a running worker group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := fetchStatus(cmd, addr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WORKER\tPID\tSTATE\tEXIT\tSIGNAL")
			for _, worker := range report.Workers {
				exit := "-"
				if worker.ExitCode >= 0 {
					exit = fmt.Sprintf("%d", worker.ExitCode)
				}
				signal := worker.Signal
				if signal == "" {
					signal = "-"
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", worker.Index, worker.Pid, formatWorkerState(string(worker.State)), exit, signal)
			}
			w.Flush()

			fmt.Fprintf(out, "\nJob: %s (group %s, %d workers)\n", report.Job, report.ID, report.Procs)
			if !report.StartedAt.IsZero() {
				fmt.Fprintf(out, "Started %s ago\n", time.Since(report.StartedAt).Truncate(time.Second))
			}
			if report.DroppedEvents > 0 {
				fmt.Fprintf(out, "Dropped events: %d\n", report.DroppedEvents)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAPIAddr, "Address of the launcher's control API")
	return cmd
}

func fetchStatus(cmd *cobra.Command, addr string) (*api.GroupReport, error) {
	url := fmt.Sprintf("http://%s/api/v1/status", addr)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			return nil, fmt.Errorf("status request failed: %s (%s)", body.Message, body.Code)
		}
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}

	var report api.GroupReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &report, nil
}

func formatWorkerState(s string) string {
	if s == "" {
		return "-"
	}
	if len(s) <= 1 {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
