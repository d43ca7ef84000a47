package cron

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"crontick/internal/clock"
	logx "crontick/pkg/logx"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func everySecond(t *testing.T, src clock.Source, opts ...Option) *Trigger {
	t.Helper()
	tr := NewTrigger(src, opts...)
	for s := 0; s < 60; s++ {
		tr.AddSeconds(s)
	}
	if err := tr.SetExpression("* * * * *"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	return tr
}

func collect(tr *Trigger, now clock.CalendarTime) []clock.CalendarTime {
	var out []clock.CalendarTime
	for ct := range tr.Scan(now) {
		out = append(out, ct)
	}
	return out
}

func at(t time.Time) clock.CalendarTime { return clock.FromTime(t) }

func TestFirstPollNeverFires(t *testing.T) {
	t.Parallel()
	src := clock.NewFake(base)
	tr := everySecond(t, src)
	fired := 0
	tr.Add(func() { fired++ })

	tr.Loop()
	if fired != 0 {
		t.Fatalf("fired = %d on first poll", fired)
	}
	cur, ok := tr.Cursor()
	if !ok || !cur.Equal(at(base)) {
		t.Fatalf("cursor = %v (ok=%v), want %v", cur, ok, at(base))
	}
}

func TestScanFiresOnlyMatchingSecond(t *testing.T) {
	t.Parallel()
	src := clock.NewFake(base)
	tr := NewTrigger(src)
	tr.AddSeconds(2)
	if err := tr.SetExpression("* * * * *"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}

	_ = collect(tr, at(base))
	got := collect(tr, at(base.Add(3*time.Second)))
	if len(got) != 1 || !got[0].Equal(at(base.Add(2*time.Second))) {
		t.Fatalf("fired %v, want exactly T+2", got)
	}
	cur, _ := tr.Cursor()
	if !cur.Equal(at(base.Add(3 * time.Second))) {
		t.Fatalf("cursor = %v, want T+3", cur)
	}
}

func TestScanIncludesCurrentSecond(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil)
	_ = collect(tr, at(base))
	got := collect(tr, at(base.Add(time.Second)))
	if len(got) != 1 || !got[0].Equal(at(base.Add(time.Second))) {
		t.Fatalf("fired %v, want exactly T+1", got)
	}
}

func TestScanFiresEverySecondInOrder(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil)
	_ = collect(tr, at(base))
	got := collect(tr, at(base.Add(10*time.Second)))
	if len(got) != 10 {
		t.Fatalf("fired %d, want 10", len(got))
	}
	for i, ct := range got {
		if want := base.Add(time.Duration(i+1) * time.Second).Unix(); ct.Timestamp != want {
			t.Fatalf("firing %d at %d, want %d", i, ct.Timestamp, want)
		}
	}
}

func TestScanRepeatedTimeIsIdempotent(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil)
	_ = collect(tr, at(base))
	now := at(base.Add(5 * time.Second))
	if got := collect(tr, now); len(got) != 5 {
		t.Fatalf("first scan fired %d, want 5", len(got))
	}
	if got := collect(tr, now); len(got) != 0 {
		t.Fatalf("second scan fired %d, want 0", len(got))
	}
	if got := collect(tr, at(base.Add(2*time.Second))); len(got) != 0 {
		t.Fatalf("slightly earlier scan fired %d, want 0", len(got))
	}
	cur, _ := tr.Cursor()
	if !cur.Equal(now) {
		t.Fatalf("cursor moved to %v", cur)
	}
}

func TestScanBackwardJumpKeepsCursor(t *testing.T) {
	t.Parallel()
	var anomalies []Anomaly
	tr := everySecond(t, nil, WithName("t"), WithAnomalyHook(func(a Anomaly) { anomalies = append(anomalies, a) }))
	_ = collect(tr, at(base))

	if got := collect(tr, at(base.Add(-901*time.Second))); len(got) != 0 {
		t.Fatalf("fired %d after backward jump", len(got))
	}
	cur, _ := tr.Cursor()
	if !cur.Equal(at(base)) {
		t.Fatalf("cursor = %v, want unchanged %v", cur, at(base))
	}
	if len(anomalies) != 1 || anomalies[0].Kind != AnomalyJumpBack || anomalies[0].Trigger != "t" {
		t.Fatalf("anomalies = %+v", anomalies)
	}

	// once the clock catches up, scanning resumes from the old cursor
	if got := collect(tr, at(base.Add(2*time.Second))); len(got) != 2 {
		t.Fatalf("fired %d after catching up, want 2", len(got))
	}
}

func TestScanBackwardJumpReportedOncePerEpisode(t *testing.T) {
	t.Parallel()
	var kinds []AnomalyKind
	tr := everySecond(t, nil, WithAnomalyHook(func(a Anomaly) { kinds = append(kinds, a.Kind) }))
	_ = collect(tr, at(base))

	// the clock ticks on normally for ten minutes, still an hour behind
	behind := base.Add(-time.Hour)
	for i := 0; i < 600; i++ {
		if got := collect(tr, at(behind.Add(time.Duration(i)*time.Second))); len(got) != 0 {
			t.Fatalf("poll %d fired %d while behind", i, len(got))
		}
	}
	if len(kinds) != 1 || kinds[0] != AnomalyJumpBack {
		t.Fatalf("anomalies while behind = %v, want one jump back", kinds)
	}

	if got := collect(tr, at(base.Add(time.Second))); len(got) != 1 {
		t.Fatalf("fired %d after catching up, want 1", len(got))
	}
	_ = collect(tr, at(base.Add(-time.Hour)))
	if len(kinds) != 2 || kinds[1] != AnomalyJumpBack {
		t.Fatalf("anomalies after second jump = %v", kinds)
	}
}

func TestScanForwardJumpSnapsCursor(t *testing.T) {
	t.Parallel()
	var anomalies []Anomaly
	tr := everySecond(t, nil, WithAnomalyHook(func(a Anomaly) { anomalies = append(anomalies, a) }))
	_ = collect(tr, at(base))

	now := at(base.Add(901 * time.Second))
	if got := collect(tr, now); len(got) != 0 {
		t.Fatalf("fired %d after forward jump", len(got))
	}
	cur, _ := tr.Cursor()
	if !cur.Equal(now) {
		t.Fatalf("cursor = %v, want %v", cur, now)
	}
	if len(anomalies) != 1 || anomalies[0].Kind != AnomalyJumpAhead {
		t.Fatalf("anomalies = %+v", anomalies)
	}
}

func TestScanWithinDriftIsScanned(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil)
	_ = collect(tr, at(base))
	if got := collect(tr, at(base.Add(900*time.Second))); len(got) != 900 {
		t.Fatalf("fired %d, want 900", len(got))
	}
}

func TestCustomDriftThreshold(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil, WithDriftThreshold(10))
	_ = collect(tr, at(base))
	if got := collect(tr, at(base.Add(11*time.Second))); len(got) != 0 {
		t.Fatalf("fired %d, want 0 beyond a 10s threshold", len(got))
	}
}

func TestScanIgnoresInvalidTime(t *testing.T) {
	t.Parallel()
	src := clock.NewFake(base)
	tr := everySecond(t, src)
	fired := 0
	tr.Add(func() { fired++ })

	src.SetValid(false)
	tr.Loop()
	if _, ok := tr.Cursor(); ok {
		t.Fatal("invalid time must not set the cursor")
	}

	src.SetValid(true)
	tr.Loop()
	src.Advance(3 * time.Second)
	src.SetValid(false)
	tr.Loop()
	if fired != 0 {
		t.Fatalf("fired %d while clock invalid", fired)
	}
	src.SetValid(true)
	tr.Loop()
	if fired != 3 {
		t.Fatalf("fired %d, want 3", fired)
	}
}

func TestUnpopulatedFieldsMatchNothing(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(nil)
	ct := at(base)
	for i := 0; i < 3600; i++ {
		if tr.Matches(ct) {
			t.Fatalf("empty trigger matched %v", ct)
		}
		ct.IncrementSecond()
	}

	// five populated fields are not enough without seconds
	fs, _ := Compile("* * * * *")
	if fs.Matches(at(base)) {
		t.Fatal("empty seconds set matched")
	}
}

func TestWildcardMatchesEveryValidTime(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil)
	ct := at(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	for i := 0; i < 7200; i++ {
		if !tr.Matches(ct) {
			t.Fatalf("wildcard did not match %v", ct)
		}
		invalid := ct
		invalid.Valid = false
		if tr.Matches(invalid) {
			t.Fatalf("matched invalid %v", invalid)
		}
		ct.IncrementSecond()
	}
}

func TestNewYearScheduleFiresOnce(t *testing.T) {
	t.Parallel()
	src := clock.NewFake(time.Date(2025, 12, 31, 23, 58, 0, 0, time.UTC))
	tr := NewTrigger(src)
	if err := tr.SetExpression("0 0 1 1 *"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	var fired []clock.CalendarTime
	tr.Add(func() { fired = append(fired, src.Now()) })

	for i := 0; i < 60; i++ {
		tr.Loop()
		src.Advance(7 * time.Second)
	}
	if len(fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(fired))
	}
}

func TestNewYearScheduleFiringTime(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(nil)
	if err := tr.SetExpression("0 0 1 1 *"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	_ = collect(tr, at(time.Date(2025, 12, 31, 23, 55, 0, 0, time.UTC)))
	var got []clock.CalendarTime
	for i := 1; i <= 20; i++ {
		got = append(got, collect(tr, at(time.Date(2025, 12, 31, 23, 55, 0, 0, time.UTC).Add(time.Duration(i)*time.Minute)))...)
	}
	want := at(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 || !got[0].Equal(want) {
		t.Fatalf("fired %v, want exactly %v", got, want)
	}
}

func TestIrregularPollingFiresOncePerMinute(t *testing.T) {
	t.Parallel()
	src := clock.NewFake(base)
	tr := NewTrigger(src)
	if err := tr.SetExpression("* * * * *"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	fired := 0
	tr.Add(func() { fired++ })

	steps := []time.Duration{time.Second, 17 * time.Second, 59 * time.Second, 61 * time.Second, 2 * time.Second, 300 * time.Second, 3 * time.Second}
	tr.Loop()
	var total time.Duration
	for i := 0; i < 20; i++ {
		d := steps[i%len(steps)]
		total += d
		src.Advance(d)
		tr.Loop()
	}
	// base is on a minute boundary and the first poll never fires
	want := int(total / time.Minute)
	if fired != want {
		t.Fatalf("fired %d, want %d over %v", fired, want, total)
	}
}

func TestScanEarlyStopResumes(t *testing.T) {
	t.Parallel()
	tr := everySecond(t, nil)
	_ = collect(tr, at(base))
	now := at(base.Add(10 * time.Second))

	n := 0
	for range tr.Scan(now) {
		n++
		if n == 4 {
			break
		}
	}
	cur, _ := tr.Cursor()
	if !cur.Equal(at(base.Add(4 * time.Second))) {
		t.Fatalf("cursor = %v, want T+4", cur)
	}
	if got := collect(tr, now); len(got) != 6 {
		t.Fatalf("resumed scan fired %d, want 6", len(got))
	}
}

func TestOutOfRangeReportedButNotBlocking(t *testing.T) {
	t.Parallel()
	var kinds []AnomalyKind
	tr := everySecond(t, nil, WithAnomalyHook(func(a Anomaly) { kinds = append(kinds, a.Kind) }))
	_ = collect(tr, at(base))

	odd := at(base.Add(time.Second))
	odd.DayOfYear = 400
	got := collect(tr, odd)
	if len(got) != 1 {
		t.Fatalf("fired %d, want 1", len(got))
	}
	if len(kinds) != 1 || kinds[0] != AnomalyOutOfRange {
		t.Fatalf("anomalies = %v", kinds)
	}
}

func TestAnomalyLogFields(t *testing.T) {
	t.Parallel()
	odd := at(base)
	odd.DayOfYear = 400

	tests := []struct {
		name    string
		polls   []clock.CalendarTime
		present []string
		absent  []string
	}{
		{
			name:    "first poll out of range",
			polls:   []clock.CalendarTime{odd},
			present: []string{"kind", "now_ts"},
			absent:  []string{"cursor_ts", "delta_s"},
		},
		{
			name:    "jump back",
			polls:   []clock.CalendarTime{at(base), at(base.Add(-time.Hour))},
			present: []string{"kind", "now_ts", "cursor_ts", "delta_s"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			tr := everySecond(t, nil, WithLogger(logx.NewWriter(&buf, "warn")))
			for _, p := range tt.polls {
				_ = collect(tr, p)
			}

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			var m map[string]any
			if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
				t.Fatalf("invalid json %q: %v", buf.String(), err)
			}
			for _, k := range tt.present {
				if _, ok := m[k]; !ok {
					t.Errorf("field %q missing: %v", k, m)
				}
			}
			for _, k := range tt.absent {
				if _, ok := m[k]; ok {
					t.Errorf("field %q present: %v", k, m)
				}
			}
		})
	}
}

func TestSetExpressionDefaultsSecondsToZero(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(nil)
	if err := tr.SetExpression("*/15 * * * *"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	fs := tr.Fields()
	if got := fs.Set(FieldSecond).String(); got != "0" {
		t.Fatalf("seconds = %q, want 0", got)
	}

	tr = NewTrigger(nil)
	tr.AddSeconds(30)
	_ = tr.SetExpression("* * * * *")
	fs = tr.Fields()
	if got := fs.Set(FieldSecond).String(); got != "30" {
		t.Fatalf("explicit seconds overwritten: %q", got)
	}
}

func TestSetExpressionMalformedKeepsPartial(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(nil)
	if err := tr.SetExpression("0 12 * * * extra"); err == nil {
		t.Fatal("expected error")
	}
	if !tr.Matches(at(base)) {
		t.Fatalf("partial schedule should still match %v", at(base))
	}
}

func TestSyncTriggerFiresPerSync(t *testing.T) {
	t.Parallel()
	src := clock.NewFake(base)
	st := NewSyncTrigger(src, WithName("sync"))
	fired := 0
	st.Add(func() { fired++ })

	src.Advance(time.Hour)
	if fired != 0 {
		t.Fatal("advance is not a sync")
	}
	src.Sync(base.Add(2 * time.Hour))
	src.Sync(base.Add(3 * time.Hour))
	if fired != 2 {
		t.Fatalf("fired %d, want 2", fired)
	}
}
