// Package errreport stores per-process failure reports in a per-launch
// namespace directory. A worker records the full failure detail here before
// exiting; the supervisor consults the store for every failed worker and
// appends whatever it finds to the failure it reports. The store is a side
// channel, so every read is forgiving: a pid that never filed, a missing
// directory or a file truncated by a crashing writer all read as "no report".
package errreport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// EnvBaseDir overrides the base directory namespaces are created under.
const EnvBaseDir = "COHORT_ERROR_DIR"

// BaseDir returns the directory report namespaces live under.
func BaseDir() string {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "cohort-errors")
}

// Store reads and writes pid-keyed reports inside one namespace directory.
// The zero value is inert: Record fails and Get reports nothing.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, which may be empty. Workers use
// this form with the directory handed down by the parent.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Configure creates <base>/<namespace> and returns a store rooted there.
// Call it once per launch, with a namespace unique to the launch, before the
// first worker spawns.
func Configure(namespace string) (*Store, error) {
	if namespace == "" {
		return nil, errors.New("errreport: namespace must not be empty")
	}
	dir := filepath.Join(BaseDir(), namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("errreport: create namespace: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the namespace directory, or "" for an unconfigured store.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

type report struct {
	Pid       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Record files the report for pid. The first write wins: a pid that already
// filed keeps its original report.
func (s *Store) Record(pid int, msg string) error {
	if s == nil || s.dir == "" {
		return errors.New("errreport: store is not configured")
	}
	data, err := json.Marshal(report{Pid: pid, Timestamp: time.Now().UnixMilli(), Message: msg})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(pid), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Get returns the report message for pid, or "" when pid never filed one or
// the file cannot be used. It never fails: the message is extracted
// leniently so even a truncated file yields what it can.
func (s *Store) Get(pid int) string {
	if s == nil || s.dir == "" {
		return ""
	}
	data, err := os.ReadFile(s.path(pid))
	if err != nil {
		return ""
	}
	return gjson.GetBytes(data, "message").String()
}

func (s *Store) path(pid int) string {
	return filepath.Join(s.dir, strconv.Itoa(pid)+".json")
}
