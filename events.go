package cohort

import (
	"sync/atomic"
	"time"
)

// EventType captures high level lifecycle notifications emitted by a Group
// while it spawns, supervises and tears down its workers.
type EventType string

const (
	EventSpawned     EventType = "spawned"
	EventExited      EventType = "exited"
	EventFailed      EventType = "failed"
	EventTerminating EventType = "terminating"
	EventTerminated  EventType = "terminated"
	EventJoined      EventType = "joined"
	EventLog         EventType = "log"
)

// Log event sources.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceSystem = "system"
)

// Event represents a single lifecycle or log notification. Worker is the
// zero-based worker index, or -1 for group-wide events.
type Event struct {
	Timestamp time.Time
	Group     string
	Worker    int
	Pid       int
	Type      EventType
	Message   string
	Source    string
	Err       error
}

// emit publishes an event without blocking. Supervision must not stall on a
// slow consumer, so when the channel is full the event is dropped and
// counted instead.
func (g *Group) emit(t EventType, worker, pid int, source, message string, err error) {
	if g.events == nil {
		return
	}
	ev := Event{
		Timestamp: time.Now(),
		Group:     g.ID,
		Worker:    worker,
		Pid:       pid,
		Type:      t,
		Message:   message,
		Source:    source,
		Err:       err,
	}
	select {
	case g.events <- ev:
	default:
		atomic.AddUint64(&g.eventDrops, 1)
	}
}

// DroppedEvents reports how many events could not be delivered because the
// events channel was full.
func (g *Group) DroppedEvents() uint64 {
	return atomic.LoadUint64(&g.eventDrops)
}
