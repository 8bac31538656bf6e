package cli

import (
	stdcontext "context"
	"time"

	"github.com/Paintersrp/cohort"
	"github.com/Paintersrp/cohort/internal/api"
)

// groupController adapts the CLI's running group to the control API.
type groupController struct {
	ctx *context
}

func (c *groupController) Status(stdcontext.Context) (*api.GroupReport, error) {
	group, jobName, procs, startedAt := c.ctx.currentGroup()
	if group == nil {
		return nil, api.ErrNoActiveGroup
	}

	snapshot := group.Snapshot()
	workers := make([]api.WorkerReport, 0, len(snapshot))
	for _, st := range snapshot {
		workers = append(workers, api.WorkerReport{
			Index:    st.Index,
			Pid:      st.Pid,
			State:    st.State,
			ExitCode: st.ExitCode,
			Signal:   st.Signal,
		})
	}

	return &api.GroupReport{
		ID:            group.ID,
		Job:           jobName,
		Entry:         group.Entry,
		Procs:         procs,
		StartedAt:     startedAt,
		GeneratedAt:   time.Now(),
		Workers:       workers,
		DroppedEvents: group.DroppedEvents(),
	}, nil
}

func (c *groupController) Terminate(ctx stdcontext.Context) (*api.TerminateResult, error) {
	group, _, _, _ := c.ctx.currentGroup()
	if group == nil {
		return nil, api.ErrNoActiveGroup
	}

	live := 0
	for _, st := range group.Snapshot() {
		if st.State == cohort.StateRunning {
			live++
		}
	}
	if live == 0 {
		return nil, api.ErrGroupSettled
	}
	if err := group.Terminate(ctx); err != nil {
		return nil, err
	}
	return &api.TerminateResult{Terminated: live, CompletedAt: time.Now()}, nil
}
