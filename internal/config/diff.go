package config

import (
	"reflect"
	"sort"

	logx "crontick/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, structured fields for
// the reload log line, and the names of triggers that were added, removed or
// changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	fields := make([]logx.Field, 0, 8)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Clock != newCfg.Clock {
		changed = append(changed, "clock")
		fields = append(fields,
			logx.String("clock.timezone", newCfg.Clock.Timezone),
			logx.String("clock.poll_interval", newCfg.Clock.PollInterval),
		)
	}
	if !reflect.DeepEqual(oldCfg.Journal, newCfg.Journal) {
		changed = append(changed, "journal")
	}

	before := make(map[string]TriggerConfig, len(oldCfg.Triggers))
	for _, t := range oldCfg.Triggers {
		before[t.Name] = t
	}
	var triggers []string
	for _, t := range newCfg.Triggers {
		prev, ok := before[t.Name]
		if !ok || !reflect.DeepEqual(prev, t) {
			triggers = append(triggers, t.Name)
		}
		delete(before, t.Name)
	}
	for name := range before {
		triggers = append(triggers, name)
	}
	sort.Strings(triggers)
	if len(triggers) > 0 {
		changed = append(changed, "triggers")
		fields = append(fields, logx.Int("triggers.changed", len(triggers)), logx.Int("triggers.total", len(newCfg.Triggers)))
	}
	return changed, fields, triggers
}
