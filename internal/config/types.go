package config

import (
	"bytes"
	"encoding/json"
)

// Config is the daemon configuration. It is read from JSON, or from YAML when
// the file ends in .yaml/.yml.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Clock   ClockConfig   `json:"clock"`

	// Journal is optional; omitted means no journal.
	Journal *JournalConfig `json:"journal,omitempty"`

	Triggers []TriggerConfig `json:"triggers"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ClockConfig controls the calendar clock and the poll loop.
//
// All durations are Go duration strings (e.g. "500ms", "1s", "15m").
//
// Defaults (when fields are omitted/zero):
//   - timezone: host local time
//   - poll_interval: "1s"
//   - drift_threshold: "15m"
type ClockConfig struct {
	// Timezone is an IANA name, e.g. "Asia/Jakarta".
	Timezone       string `json:"timezone,omitempty"`
	PollInterval   string `json:"poll_interval,omitempty"`
	DriftThreshold string `json:"drift_threshold,omitempty"`
}

// JournalConfig controls the firing journal.
//
// Example:
//
//	"journal": { "driver": "file", "path": "./crontick_journal" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Trigger kinds accepted in TriggerConfig.On.
const (
	OnCron     = "cron"
	OnTimeSync = "time_sync"
)

// TriggerConfig declares one trigger and its action.
type TriggerConfig struct {
	Name string `json:"name"`

	// On is "cron" (default) or "time_sync".
	On string `json:"on,omitempty"`

	// Cron is the five field expression (minute hour day-of-month month day-of-week).
	Cron string `json:"cron,omitempty"`

	// Seconds within each matching minute. Defaults to [0].
	Seconds []int `json:"seconds,omitempty"`

	// Strict rejects expressions the standard cron grammar does not accept,
	// instead of running whatever the lenient compiler makes of them.
	Strict bool `json:"strict,omitempty"`

	Action ActionConfig `json:"action"`
}

// Action types accepted in ActionConfig.Type.
const (
	ActionLog  = "log"
	ActionExec = "exec"
)

type ActionConfig struct {
	// Type is "log" (default) or "exec".
	Type string `json:"type,omitempty"`

	// Message is logged by "log" actions (defaults to "trigger fired").
	Message string `json:"message,omitempty"`

	// Command is argv for "exec" actions. It is not run through a shell.
	Command []string `json:"command,omitempty"`

	// Timeout kills an "exec" command that runs longer (Go duration string).
	// Use "0s" or omit to disable.
	Timeout string `json:"timeout,omitempty"`
}

// UnmarshalJSON disallows unknown fields inside a trigger so misspelled keys
// (e.g. "second" for "seconds") are caught at load/reload time.
func (t *TriggerConfig) UnmarshalJSON(b []byte) error {
	type plain TriggerConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*t = TriggerConfig(p)
	return nil
}

// Kind returns the normalised trigger kind.
func (t TriggerConfig) Kind() string {
	if t.On == "" {
		return OnCron
	}
	return t.On
}
