package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/cohort"
	"github.com/Paintersrp/cohort/internal/cliutil"
)

const (
	tableTitle          = "Workers"
	logsTitle           = "Logs"
	defaultLogRetention = 500
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of log entries retained per worker.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// WithOnQuit registers a callback invoked when the user quits the interface.
// The run command uses it to request group termination.
func WithOnQuit(fn func()) Option {
	return func(u *UI) {
		u.onQuit = fn
	}
}

// UI coordinates the interactive group dashboard backed by tview: a worker
// table on top and the selected worker's log tail below.
type UI struct {
	app    *tview.Application
	table  *tview.Table
	logs   *tview.TextView
	events chan cohort.Event

	workers map[int]*workerState
	group   string

	visible     []int
	selected    int
	logsPretty  bool
	logsFocused bool
	maxLogs     int
	onQuit      func()

	mu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type workerState struct {
	index     int
	pid       int
	firstSeen time.Time
	lastEvent time.Time
	state     cohort.EventType
	message   string

	logs []cliutil.LogRecord
}

// New constructs a UI configured with the supplied options.
func New(opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	help := tview.NewTextView().SetText(" q quit  enter focus logs  j toggle json ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(logs, 0, 2, false).
		AddItem(help, 1, 0, false)

	ui := &UI{
		app:        app,
		table:      table,
		logs:       logs,
		events:     make(chan cohort.Event, 256),
		workers:    make(map[int]*workerState),
		selected:   -1,
		logsPretty: true,
		maxLogs:    defaultLogRetention,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ui)
	}

	table.SetSelectedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderLogsLocked()
	})

	table.SetSelectionChangedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderLogsLocked()
	})

	logs.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter {
			ui.toggleFocus()
			return nil
		}
		return event
	})

	app.SetRoot(flex, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EventSink exposes the channel where group events should be delivered.
func (u *UI) EventSink() chan<- cohort.Event {
	return u.events
}

// CloseEvents releases the event channel, allowing internal goroutines to exit cleanly.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until Stop
// is invoked or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	draining := false
	ctxDone := ctx.Done()

	for {
		var tick <-chan time.Time
		if !draining {
			tick = ticker.C
		}

		select {
		case <-ctxDone:
			if !draining {
				draining = true
				ticker.Stop()
			}
			ctxDone = nil
		case evt, ok := <-u.events:
			if !ok {
				return
			}
			if draining {
				continue
			}
			u.applyEvent(evt)
		case <-tick:
			u.refreshAge()
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyUp, tcell.KeyDown:
		return event
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			if u.onQuit != nil {
				u.onQuit()
			}
			go u.Stop()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

func (u *UI) toggleFocus() {
	if u.logsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.logs)
	}
	u.logsFocused = !u.logsFocused
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.logsPretty = !u.logsPretty
	u.renderLogsLocked()
}

func (u *UI) applyEvent(evt cohort.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	u.mu.Lock()

	if evt.Group != "" {
		u.group = evt.Group
	}

	// Group-wide events (worker < 0) only update the title line.
	if evt.Worker < 0 {
		u.mu.Unlock()
		u.queueRefresh(false)
		return
	}

	state := u.workers[evt.Worker]
	if state == nil {
		state = &workerState{index: evt.Worker, firstSeen: evt.Timestamp}
		u.workers[evt.Worker] = state
	}
	state.lastEvent = evt.Timestamp
	if evt.Pid != 0 {
		state.pid = evt.Pid
	}

	if evt.Type != cohort.EventLog {
		state.state = evt.Type
		if evt.Message != "" {
			state.message = evt.Message
		} else if evt.Err != nil {
			state.message = evt.Err.Error()
		}
	} else {
		record := cliutil.NewLogRecord(evt)
		state.logs = append(state.logs, record)
		if len(state.logs) > u.maxLogs {
			trim := len(state.logs) - u.maxLogs
			state.logs = append([]cliutil.LogRecord(nil), state.logs[trim:]...)
		}
	}

	updateLogs := state.index == u.selected || u.selected < 0
	u.mu.Unlock()

	u.queueRefresh(updateLogs)
}

func (u *UI) refreshAge() {
	u.queueRefresh(false)
}

func (u *UI) queueRefresh(updateLogs bool) {
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		if updateLogs {
			u.renderLogsLocked()
		}
	})
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"WORKER", "PID", "STATE", "AGE", "MESSAGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	indexes := make([]int, 0, len(u.workers))
	for index := range u.workers {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	u.visible = indexes

	if u.group != "" {
		u.table.SetTitle(fmt.Sprintf("%s (%s)", tableTitle, u.group))
	} else {
		u.table.SetTitle(tableTitle)
	}

	for row, index := range indexes {
		state := u.workers[index]
		age := "-"
		if !state.firstSeen.IsZero() {
			age = time.Since(state.firstSeen).Truncate(time.Second).String()
		}
		pid := "-"
		if state.pid != 0 {
			pid = fmt.Sprintf("%d", state.pid)
		}
		message := state.message
		if len(message) > 80 {
			message = message[:77] + "..."
		}

		values := []string{
			fmt.Sprintf("%d", index),
			pid,
			formatState(state.state),
			age,
			message,
		}
		for col, value := range values {
			cell := tview.NewTableCell(value)
			if col == 0 {
				cell = cell.SetReference(index)
			}
			u.table.SetCell(row+1, col, cell)
		}
	}

	u.ensureSelectionLocked()
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	var state *workerState
	if u.selected >= 0 {
		state = u.workers[u.selected]
	}
	if state == nil {
		u.logs.SetTitle(logsTitle)
		return
	}

	u.logs.SetTitle(fmt.Sprintf("%s (worker %d)", logsTitle, state.index))

	for _, record := range state.logs {
		var data []byte
		var err error
		if u.logsPretty {
			data, err = json.MarshalIndent(record, "", "  ")
		} else {
			data, err = json.Marshal(record)
		}
		if err != nil {
			fmt.Fprintf(u.logs, "{\"error\":\"%v\"}\n", err)
			continue
		}
		fmt.Fprintf(u.logs, "%s\n", data)
	}
	u.logs.ScrollToEnd()
}

func (u *UI) ensureSelectionLocked() {
	if len(u.visible) == 0 {
		u.selected = -1
		u.table.Select(0, 0)
		return
	}

	idx := 0
	if u.selected >= 0 {
		for i, index := range u.visible {
			if index == u.selected {
				idx = i
				break
			}
		}
	} else {
		u.selected = u.visible[0]
	}

	if idx >= len(u.visible) {
		idx = len(u.visible) - 1
	}
	u.table.Select(idx+1, 0)
}

func (u *UI) syncSelection(row int) {
	if row <= 0 || row-1 >= len(u.visible) {
		return
	}
	u.selected = u.visible[row-1]
}

func formatState(t cohort.EventType) string {
	if t == "" {
		return "-"
	}
	s := string(t)
	if len(s) <= 1 {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
