package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Paintersrp/cohort"
)

// LogRecord represents a structured log event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Group     string    `json:"group,omitempty"`
	Worker    int       `json:"worker"`
	Pid       int       `json:"pid,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// NewLogRecord converts a group event into a structured log record. Worker
// stderr and lifecycle failures map to warn and error levels; everything else
// falls back to a level token found in the message, then to info.
func NewLogRecord(event cohort.Event) LogRecord {
	level := "info"
	switch {
	case event.Type == cohort.EventFailed:
		level = "error"
	case event.Source == cohort.SourceStderr:
		level = "warn"
	default:
		if inferred := inferLogLevel(event.Message); inferred != "" {
			level = inferred
		}
	}
	source := event.Source
	if source == "" {
		source = cohort.SourceSystem
	}
	message := event.Message
	if message == "" && event.Err != nil {
		message = event.Err.Error()
	}
	message = RedactSecrets(message)
	return LogRecord{
		Timestamp: event.Timestamp,
		Group:     event.Group,
		Worker:    event.Worker,
		Pid:       event.Pid,
		Level:     level,
		Message:   message,
		Source:    source,
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	return strings.ToLower(matches[1])
}

// EncodeLogEvent encodes a log event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event cohort.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}
