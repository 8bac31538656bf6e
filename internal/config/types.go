package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Paintersrp/cohort"
	"github.com/Paintersrp/cohort/internal/resources"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Job mirrors the job.yaml document structure.
type Job struct {
	Version     string            `yaml:"version"`
	Job         JobMeta           `yaml:"job"`
	Procs       int               `yaml:"procs"`
	Method      string            `yaml:"method"`
	Daemon      bool              `yaml:"daemon"`
	Capture     bool              `yaml:"capture"`
	Command     []string          `yaml:"command"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Resources   *Resources        `yaml:"resources"`
	Hooks       *Hooks            `yaml:"hooks"`

	// ResolvedWorkdir is the absolute working directory after Load anchors
	// job.workdir to the manifest's location.
	ResolvedWorkdir string `yaml:"-"`
}

// JobMeta contains metadata about the job document.
type JobMeta struct {
	Name    string `yaml:"name"`
	Workdir string `yaml:"workdir"`
}

// Resources captures per-worker scheduling hints. They are exported to the
// workers' environment, never enforced.
type Resources struct {
	CPU    string `yaml:"cpu"`
	Memory string `yaml:"memory"`
}

// Hooks configures commands run around the launch lifecycle.
type Hooks struct {
	PreLaunch []string `yaml:"preLaunch"`
	PostJoin  []string `yaml:"postJoin"`
	Timeout   Duration `yaml:"timeout"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (j *Job) ApplyDefaults() error {
	if j.Procs == 0 {
		j.Procs = 1
	}
	j.Method = strings.ToLower(strings.TrimSpace(j.Method))
	if j.Method == "" {
		j.Method = string(cohort.MethodSpawn)
	}
	if j.Hooks != nil && !j.Hooks.Timeout.IsSet() {
		j.Hooks.Timeout = Duration{Duration: 30 * time.Second}
	}
	return nil
}

// Validate enforces manifest invariants beyond the JSON schema.
func (j *Job) Validate() error {
	if j.Version == "" {
		return fmt.Errorf("%s: is required", fieldPath("version"))
	}
	if j.Job.Name == "" {
		return fmt.Errorf("%s: is required", fieldPath("job", "name"))
	}
	if len(j.Command) == 0 {
		return fmt.Errorf("%s: must contain at least one entry", fieldPath("command"))
	}
	if strings.TrimSpace(j.Command[0]) == "" {
		return fmt.Errorf("%s: first entry must be a command path", fieldPath("command"))
	}
	if j.Procs < 1 {
		return fmt.Errorf("%s: must be at least 1", fieldPath("procs"))
	}
	if j.Method != string(cohort.MethodSpawn) {
		return fmt.Errorf("%s: unsupported start method %q (supported values: %s)", fieldPath("method"), j.Method, cohort.MethodSpawn)
	}
	if err := validateResources(j.Resources); err != nil {
		return err
	}
	if err := validateHooks(j.Hooks); err != nil {
		return err
	}
	return nil
}

// Options converts the manifest into launch options. Resource hints become
// worker environment variables; explicitly configured env keys outrank them.
func (j *Job) Options() (cohort.Options, error) {
	opts := cohort.Options{
		Procs:   j.Procs,
		Env:     j.Env,
		Dir:     j.ResolvedWorkdir,
		Daemon:  j.Daemon,
		Method:  cohort.StartMethod(j.Method),
		Capture: j.Capture,
	}
	if j.Resources == nil {
		return opts, nil
	}
	hints, err := resources.WorkerHints(j.Resources.CPU, j.Resources.Memory)
	if err != nil {
		return cohort.Options{}, err
	}
	if len(hints) > 0 {
		merged := make(map[string]string, len(hints)+len(j.Env))
		for k, v := range hints {
			merged[k] = v
		}
		for k, v := range j.Env {
			merged[k] = v
		}
		opts.Env = merged
	}
	return opts, nil
}

// HookTimeout returns the configured hook timeout, or zero when no hooks are
// configured.
func (j *Job) HookTimeout() time.Duration {
	if j.Hooks == nil {
		return 0
	}
	return j.Hooks.Timeout.Duration
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func resourceField(parts ...string) string {
	return fieldPath(append([]string{"resources"}, parts...)...)
}

func hookField(parts ...string) string {
	return fieldPath(append([]string{"hooks"}, parts...)...)
}
