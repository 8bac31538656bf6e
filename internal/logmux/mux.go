// Package logmux fans in events from supervised worker groups and delivers
// them over one bounded channel.
package logmux

import (
	"fmt"
	"sync"
	"time"

	"github.com/Paintersrp/cohort"
)

// Mux fans in log events from multiple workers and delivers them via a
// bounded channel. When downstream consumers cannot keep up and the output
// buffer would overflow, the mux drops log records and emits a synthesized
// warning event to surface the number of discarded entries.
type Mux struct {
	out chan cohort.Event

	mu     sync.Mutex
	drops  map[int]int
	inputs sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan cohort.Event, size),
		drops: make(map[int]int),
	}
}

// Output exposes the muxed event channel.
func (m *Mux) Output() <-chan cohort.Event {
	return m.out
}

// Add registers a new source channel. The mux consumes log events until the
// source channel is closed; lifecycle events pass through untouched.
func (m *Mux) Add(source <-chan cohort.Event) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for evt := range source {
			if evt.Type != cohort.EventLog {
				m.blockingSend(normalize(evt))
				continue
			}
			m.deliver(normalize(evt))
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop metadata,
// and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(evt cohort.Event) {
	if !m.flushPending(evt.Worker) {
		m.recordDrops(evt.Worker, 1)
		return
	}
	if m.trySend(evt) {
		return
	}
	m.recordDrops(evt.Worker, 1)
}

func (m *Mux) flushPending(worker int) bool {
	for {
		count := m.takeDrops(worker)
		if count == 0 {
			return true
		}
		meta := synthesizeDropEvent(worker, count)
		if m.trySend(meta) {
			continue
		}
		m.recordDrops(worker, count)
		return false
	}
}

func (m *Mux) takeDrops(worker int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[worker]
	if count != 0 {
		delete(m.drops, worker)
	}
	return count
}

func (m *Mux) recordDrops(worker, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[worker] += count
}

func (m *Mux) flushDrops() {
	pending := m.collectDrops()
	for worker, count := range pending {
		m.blockingSend(synthesizeDropEvent(worker, count))
	}
}

func (m *Mux) collectDrops() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drops) == 0 {
		return nil
	}
	dup := make(map[int]int, len(m.drops))
	for worker, count := range m.drops {
		if count == 0 {
			continue
		}
		dup[worker] = count
	}
	m.drops = make(map[int]int)
	return dup
}

func (m *Mux) trySend(evt cohort.Event) bool {
	select {
	case m.out <- evt:
		return true
	default:
		return false
	}
}

func (m *Mux) blockingSend(evt cohort.Event) {
	m.out <- evt
}

func normalize(evt cohort.Event) cohort.Event {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Source == "" {
		evt.Source = cohort.SourceStdout
	}
	return evt
}

func synthesizeDropEvent(worker, count int) cohort.Event {
	return cohort.Event{
		Timestamp: time.Now(),
		Worker:    worker,
		Type:      cohort.EventLog,
		Message:   fmt.Sprintf("dropped=%d", count),
		Source:    cohort.SourceSystem,
	}
}
