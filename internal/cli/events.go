package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/Paintersrp/cohort"
	"github.com/Paintersrp/cohort/internal/cliutil"
)

// eventPrinter renders group events for the terminal: a human-readable line
// format when stdout is a terminal, one JSON record per line otherwise.
type eventPrinter struct {
	out    io.Writer
	errOut io.Writer
	human  bool
	enc    *json.Encoder
}

func newEventPrinter(out, errOut io.Writer) *eventPrinter {
	p := &eventPrinter{out: out, errOut: errOut}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.human = true
	} else {
		p.enc = json.NewEncoder(out)
	}
	return p
}

func (p *eventPrinter) print(evt cohort.Event) {
	if !p.human {
		cliutil.EncodeLogEvent(p.enc, p.errOut, evt)
		return
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	scope := "group"
	if evt.Worker >= 0 {
		scope = fmt.Sprintf("worker %d", evt.Worker)
	}
	message := evt.Message
	if message == "" && evt.Err != nil {
		message = evt.Err.Error()
	}
	message = cliutil.RedactSecrets(message)

	switch evt.Type {
	case cohort.EventLog:
		fmt.Fprintf(p.out, "%s %s [%s] %s\n", ts.Format("15:04:05"), scope, evt.Source, message)
	case cohort.EventFailed:
		fmt.Fprintf(p.errOut, "%s %s %s: %s\n", ts.Format("15:04:05"), scope, evt.Type, message)
	default:
		if message != "" {
			fmt.Fprintf(p.out, "%s %s %s: %s\n", ts.Format("15:04:05"), scope, evt.Type, message)
		} else {
			fmt.Fprintf(p.out, "%s %s %s\n", ts.Format("15:04:05"), scope, evt.Type)
		}
	}
}
