package app

import (
	"fmt"
	"strings"
	"time"

	"crontick/internal/config"
	"crontick/internal/journal"
	logx "crontick/pkg/logx"
)

// mapJournalConfig converts the journal section. enabled is false when the
// section is absent or the driver is "none".
func mapJournalConfig(cfg *config.Config) (journal.Config, bool, error) {
	if cfg == nil || cfg.Journal == nil {
		return journal.Config{}, false, nil
	}
	jc := cfg.Journal
	driver := strings.ToLower(strings.TrimSpace(jc.Driver))
	path := strings.TrimSpace(jc.Path)
	switch driver {
	case "", "none":
		return journal.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./crontick_journal"
		}
		return journal.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return journal.Config{}, false, fmt.Errorf("journal.path is required when journal.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, time.Second)
		if err != nil {
			return journal.Config{}, false, err
		}
		return journal.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return journal.Config{}, false, fmt.Errorf("unknown journal.driver: %s", jc.Driver)
	}
}

func mapLogConfig(l config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}
