package app

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crontick/internal/clock"
	"crontick/internal/config"
	"crontick/internal/cron"
	"crontick/internal/eventbus"
	"crontick/internal/journal"
	logx "crontick/pkg/logx"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)

func testDeps(t *testing.T, src clock.Source, bus eventbus.Bus) triggerDeps {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return triggerDeps{
		src:   src,
		loc:   time.UTC,
		drift: 15 * time.Minute,
		log:   logx.Nop(),
		rec:   newRecorder(logx.Nop(), bus, nil),
		exec:  newExecutor(ctx, logx.Nop()),
	}
}

func drainFired(ch <-chan eventbus.Event) []eventbus.Fired {
	var out []eventbus.Fired
	for {
		select {
		case e := <-ch:
			if f, ok := e.Data.(eventbus.Fired); ok {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func TestCronTriggerFiresThroughRecorder(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake(epoch)
	bus := eventbus.New()
	fired, unsub := bus.Subscribe(16, eventbus.TriggerFired)
	defer unsub()

	cfg := &config.Config{Triggers: []config.TriggerConfig{
		{Name: "tens", Cron: "* * * * *", Seconds: []int{10, 20}},
	}}
	ts := buildTriggers(cfg, nil, testDeps(t, fake, bus))
	if len(ts.loopers) != 1 {
		t.Fatalf("loopers = %d, want 1", len(ts.loopers))
	}

	ts.loopers[0].Loop() // records the cursor only
	fake.Advance(20 * time.Second)
	ts.loopers[0].Loop()

	got := drainFired(fired)
	if len(got) != 2 {
		t.Fatalf("fired %d times, want 2: %+v", len(got), got)
	}
	for i, sec := range []string{"00:00:10", "00:00:20"} {
		if got[i].Trigger != "tens" || !strings.Contains(got[i].At, sec) {
			t.Errorf("firing %d = %+v, want second %s", i, got[i], sec)
		}
	}
}

func TestBuildTriggersKeepsUnchanged(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake(epoch)
	deps := testDeps(t, fake, eventbus.New())

	first := buildTriggers(&config.Config{Triggers: []config.TriggerConfig{
		{Name: "a", Cron: "* * * * *"},
		{Name: "b", Cron: "0 * * * *"},
	}}, nil, deps)
	first.loopers[0].Loop()

	second := buildTriggers(&config.Config{Triggers: []config.TriggerConfig{
		{Name: "a", Cron: "* * * * *"},
		{Name: "b", Cron: "30 * * * *"},
		{Name: "s", On: config.OnTimeSync},
	}}, first, deps)

	if second.cron["a"] != first.cron["a"] {
		t.Fatal("unchanged trigger was rebuilt")
	}
	if _, ok := second.cron["a"].Cursor(); !ok {
		t.Fatal("carried trigger lost its cursor")
	}
	if second.cron["b"] == first.cron["b"] {
		t.Fatal("changed trigger was carried over")
	}
	if len(second.loopers) != 2 || second.syncs != 1 {
		t.Fatalf("loopers = %d, syncs = %d", len(second.loopers), second.syncs)
	}
}

func TestBuildTriggersSkipsBadAction(t *testing.T) {
	t.Parallel()
	ts := buildTriggers(&config.Config{Triggers: []config.TriggerConfig{
		{Name: "bad", Cron: "* * * * *", Action: config.ActionConfig{Type: "email"}},
		{Name: "good", Cron: "* * * * *"},
	}}, nil, testDeps(t, clock.NewFake(epoch), eventbus.New()))
	if len(ts.loopers) != 1 || ts.cron["good"] == nil {
		t.Fatalf("cron = %v", ts.cron)
	}
}

func TestRecorderAnomalyEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()
	rec := newRecorder(logx.Nop(), bus, nil)

	now := clock.FromTime(epoch)
	rec.anomaly(cron.Anomaly{Trigger: "a", Kind: cron.AnomalyJumpBack, Now: now})
	rec.anomaly(cron.Anomaly{Trigger: "a", Kind: cron.AnomalyJumpAhead, Now: now})
	rec.anomaly(cron.Anomaly{Trigger: "a", Kind: cron.AnomalyOutOfRange, Now: now})

	want := []string{eventbus.ClockJumpBack, eventbus.ClockJumpAhead, eventbus.ClockRange}
	for _, w := range want {
		e := <-ch
		if e.Type != w {
			t.Fatalf("event type = %q, want %q", e.Type, w)
		}
	}
}

func TestMapJournalConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     *config.JournalConfig
		enabled bool
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", cfg: &config.JournalConfig{Driver: "none"}},
		{name: "file default path", cfg: &config.JournalConfig{Driver: "file"}, enabled: true},
		{name: "sqlite needs path", cfg: &config.JournalConfig{Driver: "sqlite"}, wantErr: true},
		{name: "sqlite", cfg: &config.JournalConfig{Driver: "sqlite", Path: "j.db", BusyTimeout: "2s"}, enabled: true},
		{name: "unknown", cfg: &config.JournalConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jc, enabled, err := mapJournalConfig(&config.Config{Journal: tt.cfg})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled {
				t.Fatalf("enabled = %v, want %v (%+v)", enabled, tt.enabled, jc)
			}
		})
	}
}

func TestExecutorSkipsOverlap(t *testing.T) {
	t.Parallel()
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := newExecutor(ctx, logx.Nop())

	if !ex.spawn("slow", []string{sleep, "1"}, 5*time.Second) {
		t.Fatal("first spawn refused")
	}
	if ex.spawn("slow", []string{sleep, "1"}, 5*time.Second) {
		t.Fatal("overlapping spawn accepted")
	}
	if !ex.spawn("other", []string{sleep, "0"}, time.Second) {
		t.Fatal("spawn for another trigger refused")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if err := ex.wait(waitCtx); err != nil {
		t.Fatalf("wait error: %v", err)
	}
	if !ex.spawn("slow", []string{sleep, "0"}, time.Second) {
		t.Fatal("spawn after completion refused")
	}
	_ = ex.wait(waitCtx)
}

func TestAppSyncTriggerAndJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.jsonl")
	cfgPath := filepath.Join(dir, "crontick.yaml")
	body := "logging:\n  level: error\n" +
		"clock:\n  poll_interval: 10ms\n" +
		"journal:\n  driver: file\n  path: " + journalPath + "\n" +
		"triggers:\n" +
		"  - name: on-sync\n    on: time_sync\n    action:\n      message: clock is good\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	fake := clock.NewFake(epoch)
	a, err := New(cfgPath, WithSource(fake))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	synced, unsub := a.Bus().Subscribe(4, eventbus.ClockSynced)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	fake.Sync(epoch.Add(time.Hour))
	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		t.Fatal("no clock.synced event")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	st, err := journal.Open(journal.Config{Driver: "file", Path: journalPath}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer st.Close()
	entries, err := st.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(entries) == 0 || entries[0].Kind != journal.KindSynced {
		t.Fatalf("journal entries = %+v", entries)
	}
}
