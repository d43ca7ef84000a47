package cron

import (
	"iter"
	"time"

	"golang.org/x/time/rate"

	"crontick/internal/clock"
	logx "crontick/pkg/logx"
)

// DefaultDriftThreshold is how far (in seconds) the clock may move between two
// polls before the move is treated as a time synchronisation instead of
// elapsed time.
const DefaultDriftThreshold int64 = 900

// AnomalyKind classifies a clock discontinuity seen by a trigger.
type AnomalyKind int

const (
	AnomalyJumpBack AnomalyKind = iota + 1
	AnomalyJumpAhead
	AnomalyOutOfRange
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalyJumpBack:
		return "jump_back"
	case AnomalyJumpAhead:
		return "jump_ahead"
	case AnomalyOutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// Anomaly describes one clock discontinuity. Cursor is the trigger's cursor
// before the poll (zero for out-of-range reports on the first poll).
type Anomaly struct {
	Trigger string
	Kind    AnomalyKind
	Cursor  clock.CalendarTime
	Now     clock.CalendarTime
}

type options struct {
	name      string
	log       logx.Logger
	drift     int64
	warnEvery time.Duration
	warnBurst int
	onAnomaly func(Anomaly)
}

// Option configures a Trigger or SyncTrigger.
type Option func(*options)

func WithName(name string) Option { return func(o *options) { o.name = name } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithDriftThreshold overrides DefaultDriftThreshold. Values below 1 are ignored.
func WithDriftThreshold(seconds int64) Option {
	return func(o *options) {
		if seconds > 0 {
			o.drift = seconds
		}
	}
}

// WithWarnLimit throttles anomaly warnings to burst per every. Anomaly hooks
// are never throttled.
func WithWarnLimit(every time.Duration, burst int) Option {
	return func(o *options) {
		o.warnEvery = every
		o.warnBurst = burst
	}
}

// WithAnomalyHook installs fn to receive every anomaly.
func WithAnomalyHook(fn func(Anomaly)) Option { return func(o *options) { o.onAnomaly = fn } }

func buildOptions(opts []Option) options {
	o := options{
		drift:     DefaultDriftThreshold,
		warnEvery: time.Minute,
		warnBurst: 3,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.name != "" {
		o.log = o.log.With(logx.String("trigger", o.name))
	}
	return o
}

// Trigger fires its actions once for every second that matches its field sets.
//
// It is driven by Loop, called periodically from a single control loop. Loop
// is not reentrant and a Trigger is not safe for concurrent use: configure it
// (Add*, SetExpression, Add) before the first poll.
type Trigger struct {
	opts   options
	src    clock.Source
	fields Fields

	cursor    clock.CalendarTime
	hasCursor bool
	// behind is set while the clock sits behind the cursor after a reported
	// backward jump, so the jump is reported once.
	behind bool

	warn    *rate.Limiter
	actions []func()
}

// NewTrigger returns a Trigger with all six field sets empty. An empty set
// matches nothing, so at least the seconds set must be populated, either
// explicitly or by SetExpression.
func NewTrigger(src clock.Source, opts ...Option) *Trigger {
	o := buildOptions(opts)
	return &Trigger{
		opts:   o,
		src:    src,
		fields: NewFields(),
		warn:   rate.NewLimiter(rate.Every(o.warnEvery), max(1, o.warnBurst)),
	}
}

func (t *Trigger) Name() string { return t.opts.name }

func (t *Trigger) AddSeconds(values ...int)     { t.add(FieldSecond, values) }
func (t *Trigger) AddMinutes(values ...int)     { t.add(FieldMinute, values) }
func (t *Trigger) AddHours(values ...int)       { t.add(FieldHour, values) }
func (t *Trigger) AddDaysOfMonth(values ...int) { t.add(FieldDayOfMonth, values) }
func (t *Trigger) AddMonths(values ...int)      { t.add(FieldMonth, values) }
func (t *Trigger) AddDaysOfWeek(values ...int)  { t.add(FieldDayOfWeek, values) }

func (t *Trigger) add(f Field, values []int) {
	for _, v := range values {
		t.fields.Add(f, v)
	}
}

// SetExpression compiles a five field cron expression into the trigger's
// minute, hour, day-of-month, month and day-of-week sets. If no second has
// been added yet the seconds set becomes {0}, so the schedule fires at the
// top of each matching minute.
//
// A malformed expression still leaves its partial result in place; the
// returned error says what was wrong.
func (t *Trigger) SetExpression(expression string) error {
	err := compileInto(&t.fields, expression)
	if t.fields.Set(FieldSecond).Empty() {
		t.fields.Add(FieldSecond, 0)
	}
	if err != nil {
		t.opts.log.Warn("cron expression malformed; using partial schedule",
			logx.String("expression", expression), logx.Err(err))
	}
	return err
}

// Fields returns a copy of the compiled sets.
func (t *Trigger) Fields() Fields { return t.fields }

// Add registers an action. Actions run synchronously, in registration order,
// once per matching second, and must not block.
func (t *Trigger) Add(action func()) {
	if action != nil {
		t.actions = append(t.actions, action)
	}
}

// Cursor returns the last time the scanner has fully processed.
func (t *Trigger) Cursor() (clock.CalendarTime, bool) { return t.cursor, t.hasCursor }

// Matches reports whether ct is valid and every field set contains the
// corresponding component.
func (t *Trigger) Matches(ct clock.CalendarTime) bool {
	return ct.Valid && t.fields.Matches(ct)
}

// Loop runs one poll: it reads the clock and fires the actions once for each
// due second.
func (t *Trigger) Loop() {
	if t.src == nil {
		return
	}
	for range t.Scan(t.src.Now()) {
		t.fire()
	}
}

func (t *Trigger) fire() {
	for _, a := range t.actions {
		a()
	}
}

// Scan advances the cursor to now and yields every matching second after the
// cursor up to and including now, in increasing order.
//
// The sequence is lazy: state changes happen while it is consumed. If the
// consumer stops early the cursor rests on the last yielded second, so the
// next scan resumes after it.
//
//   - an invalid now is ignored
//   - the first scan only records the cursor
//   - now behind the cursor by more than the drift threshold is reported as a
//     backward jump, once until the clock passes the cursor again; the cursor
//     is kept so scanning resumes once the clock catches up
//   - now at or slightly behind the cursor has already been handled
//   - now ahead by more than the drift threshold is reported as a forward
//     jump; the cursor snaps to now without scanning the gap
func (t *Trigger) Scan(now clock.CalendarTime) iter.Seq[clock.CalendarTime] {
	return func(yield func(clock.CalendarTime) bool) {
		if !now.Valid {
			return
		}
		if !t.hasCursor {
			t.cursor, t.hasCursor = now, true
			t.checkRange(clock.CalendarTime{}, now)
			return
		}

		last := t.cursor
		switch {
		case last.After(now) && last.Timestamp-now.Timestamp > t.opts.drift:
			if !t.behind {
				t.behind = true
				t.report(AnomalyJumpBack, last, now, "time has jumped back")
			}
			return
		case !now.After(last):
			return
		}
		t.behind = false
		if now.Timestamp-last.Timestamp > t.opts.drift {
			t.report(AnomalyJumpAhead, last, now, "time has jumped ahead")
			t.cursor = now
			return
		}

		c := last
		for {
			c.IncrementSecond()
			if !c.Before(now) {
				break
			}
			if t.Matches(c) {
				t.cursor = c
				if !yield(c) {
					return
				}
			}
		}

		t.cursor = now
		t.checkRange(last, now)
		if t.Matches(now) {
			yield(now)
		}
	}
}

func (t *Trigger) checkRange(last, now clock.CalendarTime) {
	if now.FieldsInRange() {
		return
	}
	t.report(AnomalyOutOfRange, last, now, "time is out of range")
}

func (t *Trigger) report(kind AnomalyKind, last, now clock.CalendarTime, msg string) {
	if t.warn.Allow() {
		fields := []logx.Field{logx.String("kind", kind.String())}
		// last is the zero time on the first poll; there is no cursor to compare
		if last.Valid {
			fields = append(fields,
				logx.Int64("cursor_ts", last.Timestamp),
				logx.Int64("delta_s", now.Timestamp-last.Timestamp),
			)
		}
		fields = append(fields, logx.Int64("now_ts", now.Timestamp))
		t.opts.log.Warn(msg, fields...)
		t.opts.log.Debug("clock fields",
			logx.Int("second", now.Second),
			logx.Int("minute", now.Minute),
			logx.Int("hour", now.Hour),
			logx.Int("day_of_week", now.DayOfWeek),
			logx.Int("day_of_month", now.DayOfMonth),
			logx.Int("day_of_year", now.DayOfYear),
			logx.Int("month", now.Month),
		)
	}
	if t.opts.onAnomaly != nil {
		t.opts.onAnomaly(Anomaly{Trigger: t.opts.name, Kind: kind, Cursor: last, Now: now})
	}
}

// SyncTrigger fires its actions once after each successful time
// synchronisation of its clock source.
type SyncTrigger struct {
	opts    options
	actions []func()
}

func NewSyncTrigger(src clock.Source, opts ...Option) *SyncTrigger {
	s := &SyncTrigger{opts: buildOptions(opts)}
	if src != nil {
		src.OnTimeSync(s.fire)
	}
	return s
}

func (s *SyncTrigger) Name() string { return s.opts.name }

func (s *SyncTrigger) Add(action func()) {
	if action != nil {
		s.actions = append(s.actions, action)
	}
}

func (s *SyncTrigger) fire() {
	s.opts.log.Debug("time synchronised")
	for _, a := range s.actions {
		a()
	}
}
