package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	workersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cohort",
		Name:      "workers_active",
		Help:      "Number of worker processes currently supervised.",
	})

	groupsLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cohort",
		Name:      "groups_launched_total",
		Help:      "Total number of worker groups launched.",
	})

	workerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cohort",
		Name:      "worker_failures_total",
		Help:      "Total number of designated worker failures by kind.",
	}, []string{"kind"})

	joinDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cohort",
		Name:      "join_duration_seconds",
		Help:      "Time from group launch until the group settled.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cohort",
		Name:      "build_info",
		Help:      "Build metadata for the running cohort binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(workersActive, groupsLaunched, workerFailures, joinDuration, buildInfo)
}

// Registry returns the Prometheus registry containing all cohort metrics.
func Registry() *prometheus.Registry {
	return registry
}

// GroupLaunched records a new group of n workers entering supervision.
func GroupLaunched(n int) {
	if n <= 0 {
		return
	}
	groupsLaunched.Inc()
	workersActive.Add(float64(n))
}

// WorkerExited records one worker leaving supervision.
func WorkerExited() {
	workersActive.Dec()
}

// WorkersReleased records n workers leaving supervision at once, as happens
// when a cascade tears the group down.
func WorkersReleased(n int) {
	if n <= 0 {
		return
	}
	workersActive.Sub(float64(n))
}

// WorkerFailed records a designated failure of the given kind.
func WorkerFailed(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	workerFailures.WithLabelValues(kind).Inc()
}

// ObserveJoinDuration records how long a group took to settle.
func ObserveJoinDuration(d time.Duration) {
	if d < 0 {
		return
	}
	joinDuration.Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
