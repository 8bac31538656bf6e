package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/Paintersrp/cohort"
)

var (
	ErrNoActiveGroup = errors.New("no active group")
	ErrGroupSettled  = errors.New("group already settled")
)

// WorkerReport describes the runtime state of a single worker.
type WorkerReport struct {
	Index    int                `json:"index"`
	Pid      int                `json:"pid"`
	State    cohort.WorkerState `json:"state"`
	ExitCode int                `json:"exit_code"`
	Signal   string             `json:"signal,omitempty"`
}

// GroupReport aggregates group-wide status information.
type GroupReport struct {
	ID            string         `json:"id"`
	Job           string         `json:"job"`
	Entry         string         `json:"entry"`
	Procs         int            `json:"procs"`
	StartedAt     time.Time      `json:"started_at"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Workers       []WorkerReport `json:"workers"`
	DroppedEvents uint64         `json:"dropped_events"`
}

// TerminateResult captures the outcome of a terminate request.
type TerminateResult struct {
	Terminated  int       `json:"terminated"`
	CompletedAt time.Time `json:"completed_at"`
}

// Controller exposes the supervision operations a control server needs.
type Controller interface {
	Status(stdcontext.Context) (*GroupReport, error)
	Terminate(stdcontext.Context) (*TerminateResult, error)
}
