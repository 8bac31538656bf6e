// Package resources parses per-worker scheduling hints. Hints are advisory:
// they are rendered into each worker's environment, never enforced by the
// supervisor.
package resources

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

const NanoCPUs = 1_000_000_000

// Environment variables carrying resource hints into workers.
const (
	EnvMaxProcs = "GOMAXPROCS"
	EnvMemLimit = "GOMEMLIMIT"
)

// ParseCPU converts a textual CPU quantity into nanocpu units. Supported
// formats include fractional core counts (e.g. "0.5") and millicores using
// the Kubernetes-style suffix (e.g. "500m").
func ParseCPU(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	var cores float64
	var err error
	if strings.HasSuffix(trimmed, "m") || strings.HasSuffix(trimmed, "M") {
		milli := strings.TrimSpace(trimmed[:len(trimmed)-1])
		if milli == "" {
			return 0, fmt.Errorf("invalid cpu quantity %q", value)
		}
		var milliVal float64
		milliVal, err = strconv.ParseFloat(milli, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid cpu quantity %q: %w", value, err)
		}
		cores = milliVal / 1000.0
	} else {
		cores, err = strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid cpu quantity %q: %w", value, err)
		}
	}
	if cores <= 0 {
		return 0, fmt.Errorf("invalid cpu quantity %q: must be positive", value)
	}
	nano := math.Round(cores * NanoCPUs)
	if nano < 1 {
		nano = 1
	}
	if nano > math.MaxInt64 {
		return 0, fmt.Errorf("invalid cpu quantity %q: exceeds supported range", value)
	}
	return int64(nano), nil
}

// ParseMemory converts textual memory limits like "512Mi" into bytes.
func ParseMemory(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasSuffix(lower, "kib"), strings.HasSuffix(lower, "mib"), strings.HasSuffix(lower, "gib"), strings.HasSuffix(lower, "tib"), strings.HasSuffix(lower, "pib"), strings.HasSuffix(lower, "eib"):
		// already in binary units understood by go-units
	case strings.HasSuffix(lower, "ki"), strings.HasSuffix(lower, "mi"), strings.HasSuffix(lower, "gi"), strings.HasSuffix(lower, "ti"), strings.HasSuffix(lower, "pi"), strings.HasSuffix(lower, "ei"):
		trimmed += "B"
	}
	bytes, err := units.RAMInBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %w", value, err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("invalid memory quantity %q: must be positive", value)
	}
	return bytes, nil
}

// WorkerHints renders CPU and memory hints as worker environment variables:
// GOMAXPROCS from the CPU hint, rounded up to whole cores, and GOMEMLIMIT
// from the memory hint in bytes. Empty hints contribute nothing; two empty
// hints yield a nil map.
func WorkerHints(cpu, memory string) (map[string]string, error) {
	hints := make(map[string]string, 2)
	if strings.TrimSpace(cpu) != "" {
		nano, err := ParseCPU(cpu)
		if err != nil {
			return nil, err
		}
		cores := (nano + NanoCPUs - 1) / NanoCPUs
		hints[EnvMaxProcs] = strconv.FormatInt(cores, 10)
	}
	if strings.TrimSpace(memory) != "" {
		bytes, err := ParseMemory(memory)
		if err != nil {
			return nil, err
		}
		hints[EnvMemLimit] = strconv.FormatInt(bytes, 10)
	}
	if len(hints) == 0 {
		return nil, nil
	}
	return hints, nil
}

// FormatCPU renders a parsed CPU hint back into its most compact human form:
// whole cores, millicores or a fractional core count.
func FormatCPU(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	nano, err := ParseCPU(trimmed)
	if err != nil {
		return trimmed
	}
	if nano%NanoCPUs == 0 {
		return strconv.FormatInt(nano/NanoCPUs, 10)
	}
	milliUnit := int64(NanoCPUs / 1000)
	if nano < NanoCPUs && nano%milliUnit == 0 {
		return fmt.Sprintf("%dm", nano/milliUnit)
	}
	cores := float64(nano) / float64(NanoCPUs)
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", cores), "0"), ".")
}

// FormatMemory renders a parsed memory hint in binary units.
func FormatMemory(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	bytes, err := ParseMemory(trimmed)
	if err != nil {
		return trimmed
	}
	return units.BytesSize(float64(bytes))
}
