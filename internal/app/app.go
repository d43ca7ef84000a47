package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"crontick/internal/clock"
	"crontick/internal/config"
	"crontick/internal/eventbus"
	"crontick/internal/journal"
	"crontick/internal/runtime/supervisor"
	logx "crontick/pkg/logx"
	"crontick/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store journal.Store
	rec   *recorder
	exec  *executor

	src    clock.Source
	clock  config.ClockSettings
	poller *supervisor.Poller

	// triggers is swapped on the poll goroutine only; the pointer is atomic
	// so the sync callback can read it from any goroutine.
	triggers atomic.Pointer[triggerSet]
	sd       systemd.Notifier
}

// Option adjusts an App before it starts. Used by tests.
type Option func(*App)

// WithSource replaces the system clock.
func WithSource(src clock.Source) Option { return func(a *App) { a.src = src } }

// New loads and validates the config at cfgPath and builds the daemon.
func New(cfgPath string, opts ...Option) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "config"))
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	settings, err := cfg.Clock.Resolve()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	var store journal.Store
	if jc, enabled, err := mapJournalConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := journal.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		store = st
		log.Info("journal enabled", logx.String("driver", jc.Driver), logx.String("path", jc.Path))
	}

	bus := eventbus.New()
	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		rec:   newRecorder(log.With(logx.String("comp", "journal")), bus, store),
		clock: settings,
	}
	for _, o := range opts {
		o(a)
	}
	if a.src == nil {
		a.src = clock.NewSystem(settings.Location)
	}
	a.src.OnTimeSync(a.onTimeSync)

	a.poller = supervisor.NewPoller(settings.PollInterval,
		supervisor.WithPollLogger(log.With(logx.String("comp", "poll"))),
		supervisor.WithWatchdog(systemd.WatchdogInterval(), func() { _, _ = a.sd.Watchdog() }),
	)
	return a, nil
}

// Bus exposes the event bus.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Poller exposes the control loop.
func (a *App) Poller() *supervisor.Poller { return a.poller }

// Done is closed when the app context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) deps() triggerDeps {
	return triggerDeps{
		src:   a.src,
		loc:   a.clock.Location,
		drift: a.clock.DriftThreshold,
		log:   a.log.With(logx.String("comp", "trigger")),
		rec:   a.rec,
		exec:  a.exec,
	}
}

// Start builds the triggers and starts the poll loop, the config watcher and
// the journal writer.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	a.exec = newExecutor(a.sup.Context(), a.log.With(logx.String("comp", "exec")))

	ts := buildTriggers(a.cfgm.Get(), nil, a.deps())
	a.triggers.Store(ts)
	a.poller.SetLoopers(ts.loopers)

	a.sup.Go("journal.drain", a.rec.drain)
	a.sup.Go("poll", a.poller.Run)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, 250*time.Millisecond, 5*time.Second)

	a.log.Info("app started",
		logx.Int("cron_triggers", len(ts.loopers)),
		logx.Int("sync_triggers", ts.syncs),
		logx.Duration("poll_interval", a.clock.PollInterval),
		logx.String("timezone", a.clock.Location.String()),
	)
	return nil
}

// applyConfig applies a reloaded config. Logging applies at once, triggers
// are swapped between polls, and clock and journal changes need a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, changedTriggers := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg.Logging))
		case "clock", "journal":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	if len(changedTriggers) > 0 {
		a.log.Debug("trigger config changes detected", logx.Strs("triggers", changedTriggers))
		err := a.poller.Do(ctx, func() {
			ts := buildTriggers(newCfg, a.triggers.Load(), a.deps())
			a.triggers.Store(ts)
			a.poller.SetLoopers(ts.loopers)
		})
		if err != nil {
			return
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: eventbus.Reloaded{Sections: sections, Triggers: changedTriggers}})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// onTimeSync runs on whatever goroutine observed the sync.
func (a *App) onTimeSync() {
	now := a.src.Now()
	a.log.Info("time synchronised", logx.String("now", now.String()))
	a.rec.synced(now)
	if ts := a.triggers.Load(); ts != nil {
		ts.hub.fire()
	}
}

// Stop shuts the daemon down. Each step is bounded so one stuck component
// cannot stall the others.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		c, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		start := time.Now()
		if err := fn(c); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("supervisor", 3*time.Second, a.sup.Stop)
	step("exec", 5*time.Second, a.exec.wait)
	step("journal", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
