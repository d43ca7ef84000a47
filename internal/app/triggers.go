package app

import (
	"reflect"
	"sync"
	"time"

	"crontick/internal/clock"
	"crontick/internal/config"
	"crontick/internal/cron"
	"crontick/internal/runtime/supervisor"
	logx "crontick/pkg/logx"
)

// syncHub collects the sync callbacks of one trigger set so that a reload can
// drop them; the clock source itself only ever gets one callback.
type syncHub struct {
	clock.Source

	mu  sync.Mutex
	fns []func()
}

func (h *syncHub) OnTimeSync(fn func()) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *syncHub) fire() {
	h.mu.Lock()
	fns := append([]func(){}, h.fns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// triggerSet is everything built from one config's triggers section.
type triggerSet struct {
	cfg     map[string]config.TriggerConfig
	cron    map[string]*cron.Trigger
	loopers []supervisor.Looper
	hub     *syncHub
	syncs   int
}

type triggerDeps struct {
	src   clock.Source
	loc   *time.Location
	drift time.Duration
	log   logx.Logger
	rec   *recorder
	exec  *executor
}

// buildTriggers builds the trigger set for cfg. Cron triggers whose config is
// unchanged from prev are carried over so their cursor survives the reload.
func buildTriggers(cfg *config.Config, prev *triggerSet, d triggerDeps) *triggerSet {
	ts := &triggerSet{
		cfg:  map[string]config.TriggerConfig{},
		cron: map[string]*cron.Trigger{},
		hub:  &syncHub{Source: d.src},
	}
	for _, tc := range cfg.Triggers {
		log := d.log.With(logx.String("trigger", tc.Name))
		ts.cfg[tc.Name] = tc

		action, err := newAction(tc, d.exec, d.log)
		if err != nil {
			log.Warn("trigger skipped", logx.Err(err))
			continue
		}

		if tc.Kind() == config.OnTimeSync {
			st := cron.NewSyncTrigger(ts.hub, cron.WithName(tc.Name), cron.WithLogger(d.log))
			st.Add(action)
			ts.syncs++
			continue
		}

		if prev != nil {
			if old, ok := prev.cron[tc.Name]; ok && reflect.DeepEqual(prev.cfg[tc.Name], tc) {
				ts.cron[tc.Name] = old
				ts.loopers = append(ts.loopers, old)
				continue
			}
		}

		t := newCronTrigger(tc, action, d)
		ts.cron[tc.Name] = t
		ts.loopers = append(ts.loopers, t)
	}
	return ts
}

func newCronTrigger(tc config.TriggerConfig, action func(), d triggerDeps) *cron.Trigger {
	t := cron.NewTrigger(d.src,
		cron.WithName(tc.Name),
		cron.WithLogger(d.log),
		cron.WithDriftThreshold(int64(d.drift/time.Second)),
		cron.WithAnomalyHook(d.rec.anomaly),
	)
	// seconds first so SetExpression does not default them to {0}
	t.AddSeconds(tc.Seconds...)
	_ = t.SetExpression(tc.Cron)

	log := d.log.With(logx.String("trigger", tc.Name))
	if log.Enabled(logx.LevelDebug) {
		fields := []logx.Field{logx.String("cron", tc.Cron)}
		fs := t.Fields()
		for f, v := range fs.All() {
			fields = append(fields, logx.String(f.String(), v.String()))
		}
		if next := cron.Preview(fs, time.Now().In(d.loc), 3); next != "" {
			fields = append(fields, logx.String("next", next))
		}
		log.Debug("trigger compiled", fields...)
	}

	name := tc.Name
	t.Add(func() {
		at, _ := t.Cursor()
		d.rec.fired(name, at)
		action()
	})
	return t
}
