package main

import (
	"github.com/Paintersrp/cohort"
	"github.com/Paintersrp/cohort/internal/cli"
	"github.com/Paintersrp/cohort/internal/metrics"
)

func main() {
	// Worker dispatch must run before anything else: in a spawned worker
	// Init never returns.
	cohort.Init()
	metrics.EmitBuildInfo()
	cli.Execute()
}
