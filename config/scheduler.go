package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// SchedulerConfig lists the periodic jobs and their cron specs.
type SchedulerConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Tick    time.Duration     `mapstructure:"tick"`
	LockTTL time.Duration     `mapstructure:"lock_ttl"`
	Jobs    map[string]string `mapstructure:"jobs"`
}

// Normalize trims job specs and drops empty entries.
func (c SchedulerConfig) Normalize() SchedulerConfig {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	jobs := make(map[string]string, len(c.Jobs))
	for name, spec := range c.Jobs {
		name = strings.TrimSpace(strings.ToLower(name))
		spec = strings.TrimSpace(spec)
		if name == "" || spec == "" {
			continue
		}
		jobs[name] = spec
	}
	c.Jobs = jobs
	return c
}

// Validate parses each cron spec.
func (c SchedulerConfig) Validate() error {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := cronexpr.Parse(c.Jobs[name]); err != nil {
			return fmt.Errorf("scheduler.jobs.%s: %w", name, err)
		}
	}
	return nil
}
