package clock

import (
	"testing"
	"time"
)

func TestSystemReportsSyncOnValidTransition(t *testing.T) {
	t.Parallel()
	current := time.Unix(0, 0).UTC()
	s := NewSystem(time.UTC)
	s.now = func() time.Time { return current }

	syncs := 0
	s.OnTimeSync(func() { syncs++ })

	if ct := s.Now(); ct.Valid {
		t.Fatalf("expected invalid time at epoch, got %v", ct)
	}
	current = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if ct := s.Now(); !ct.Valid {
		t.Fatalf("expected valid time, got %v", ct)
	}
	_ = s.Now()
	if syncs != 1 {
		t.Fatalf("syncs = %d, want 1", syncs)
	}
}

func TestSystemValidAtStartIsNotASync(t *testing.T) {
	t.Parallel()
	s := NewSystem(time.UTC)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	syncs := 0
	s.OnTimeSync(func() { syncs++ })
	_ = s.Now()
	_ = s.Now()
	if syncs != 0 {
		t.Fatalf("syncs = %d, want 0", syncs)
	}
}

func TestSystemResolvesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	s := NewSystem(loc)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC) }
	ct := s.Now()
	if ct.Hour != 3 || ct.DayOfMonth != 2 {
		t.Fatalf("expected local 03:00 on the 2nd, got %v", ct)
	}
}

func TestFakeSyncAndValidity(t *testing.T) {
	t.Parallel()
	f := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	f.SetValid(false)
	if f.Now().Valid {
		t.Fatal("expected invalid")
	}

	syncs := 0
	f.OnTimeSync(func() { syncs++ })
	f.Sync(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	ct := f.Now()
	if !ct.Valid || ct.DayOfMonth != 2 || syncs != 1 {
		t.Fatalf("after sync: ct=%v syncs=%d", ct, syncs)
	}

	f.Advance(90 * time.Second)
	if ct := f.Now(); ct.Minute != 1 || ct.Second != 30 {
		t.Fatalf("after advance: %v", ct)
	}
}

func TestFakeOnlySyncRunsCallbacks(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	syncs := 0
	f.OnTimeSync(func() { syncs++ })

	if ct := f.Now(); !ct.Equal(FromTime(start)) {
		t.Fatalf("time moved on its own: %v", ct)
	}
	f.SetValid(false)
	f.SetValid(true)
	f.Set(start.Add(time.Hour))
	f.Advance(time.Minute)
	if syncs != 0 {
		t.Fatalf("syncs = %d before Sync", syncs)
	}
	if ct := f.Now(); ct.Hour != 13 || ct.Minute != 1 {
		t.Fatalf("after set and advance: %v", ct)
	}

	f.SetValid(false)
	f.Sync(start)
	if ct := f.Now(); !ct.Valid || syncs != 1 {
		t.Fatalf("after sync: ct=%v syncs=%d", ct, syncs)
	}
}
