package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crontick/internal/cron"
)

// Validate checks cross-field rules the JSON decoder cannot express.
// All problems are reported, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if tz := strings.TrimSpace(cfg.Clock.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("clock.timezone: %w", err))
		}
	}
	if _, err := ParseDurationField("clock.poll_interval", cfg.Clock.PollInterval); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDriftThreshold(cfg.Clock.DriftThreshold); err != nil {
		errs = append(errs, err)
	}
	if j := cfg.Journal; j != nil {
		switch strings.ToLower(strings.TrimSpace(j.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("journal.driver: unknown driver %q", j.Driver))
		}
		if _, err := ParseDurationField("journal.busy_timeout", j.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for i, t := range cfg.Triggers {
		path := fmt.Sprintf("triggers[%d]", i)
		name := strings.TrimSpace(t.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		seen[name] = true
		errs = append(errs, validateTrigger(path, t)...)
	}
	return errors.Join(errs...)
}

func validateTrigger(path string, t TriggerConfig) []error {
	var errs []error
	switch t.Kind() {
	case OnCron:
		if strings.TrimSpace(t.Cron) == "" {
			errs = append(errs, fmt.Errorf("%s.cron: required", path))
		} else if t.Strict {
			if err := cron.Lint(t.Cron); err != nil {
				errs = append(errs, fmt.Errorf("%s.cron: %w", path, err))
			}
		}
		for _, s := range t.Seconds {
			if s < cron.FieldSecond.Min() || s > cron.FieldSecond.Max() {
				errs = append(errs, fmt.Errorf("%s.seconds: %d out of range 0-60", path, s))
			}
		}
	case OnTimeSync:
		if t.Cron != "" || len(t.Seconds) > 0 {
			errs = append(errs, fmt.Errorf("%s: time_sync triggers take no cron or seconds", path))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.on: unknown kind %q", path, t.On))
	}

	switch t.Action.Type {
	case "", ActionLog:
	case ActionExec:
		if len(t.Action.Command) == 0 || strings.TrimSpace(t.Action.Command[0]) == "" {
			errs = append(errs, fmt.Errorf("%s.action.command: required for exec", path))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.action.type: unknown type %q", path, t.Action.Type))
	}
	if _, err := ParseDurationField(path+".action.timeout", t.Action.Timeout); err != nil {
		errs = append(errs, err)
	}
	return errs
}
