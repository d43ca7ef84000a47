package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPollInterval   = time.Second
	DefaultDriftThreshold = 15 * time.Minute
)

// ParseDurationField parses a Go duration string. Empty means 0; negative
// durations are rejected. path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for 0.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseDriftThreshold parses clock.drift_threshold. Empty or 0 selects the
// default. The trigger core counts drift in whole seconds, so anything shorter
// than a second is rejected.
func ParseDriftThreshold(raw string) (time.Duration, error) {
	d, err := ParseDurationOrDefault("clock.drift_threshold", raw, DefaultDriftThreshold)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("clock.drift_threshold: %s is below the 1s resolution", d)
	}
	return d, nil
}

// ClockSettings is ClockConfig with defaults applied and strings parsed.
type ClockSettings struct {
	Location       *time.Location
	PollInterval   time.Duration
	DriftThreshold time.Duration
}

// Resolve applies defaults. An empty timezone resolves to time.Local.
func (c ClockConfig) Resolve() (ClockSettings, error) {
	out := ClockSettings{Location: time.Local}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ClockSettings{}, fmt.Errorf("clock.timezone: %w", err)
		}
		out.Location = loc
	}
	var err error
	if out.PollInterval, err = ParseDurationOrDefault("clock.poll_interval", c.PollInterval, DefaultPollInterval); err != nil {
		return ClockSettings{}, err
	}
	if out.DriftThreshold, err = ParseDriftThreshold(c.DriftThreshold); err != nil {
		return ClockSettings{}, err
	}
	return out, nil
}
