package config

import (
	"fmt"
	"strings"

	"github.com/Paintersrp/cohort/internal/resources"
)

func validateResources(r *Resources) error {
	if r == nil {
		return nil
	}
	if strings.TrimSpace(r.CPU) != "" {
		if _, err := resources.ParseCPU(r.CPU); err != nil {
			return fmt.Errorf("%s: %w", resourceField("cpu"), err)
		}
	}
	if strings.TrimSpace(r.Memory) != "" {
		if _, err := resources.ParseMemory(r.Memory); err != nil {
			return fmt.Errorf("%s: %w", resourceField("memory"), err)
		}
	}
	return nil
}

func validateHooks(h *Hooks) error {
	if h == nil {
		return nil
	}
	hooks := []struct {
		name string
		cmd  []string
	}{
		{"preLaunch", h.PreLaunch},
		{"postJoin", h.PostJoin},
	}
	for _, hook := range hooks {
		if hook.cmd == nil {
			continue
		}
		if len(hook.cmd) == 0 || strings.TrimSpace(hook.cmd[0]) == "" {
			return fmt.Errorf("%s: must contain at least one entry", hookField(hook.name))
		}
	}
	if h.Timeout.IsSet() && h.Timeout.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", hookField("timeout"))
	}
	return nil
}
