package clock

import (
	"sync"
	"time"
)

// Source supplies the current calendar time.
type Source interface {
	// Now returns the current local calendar time. Callers must check Valid.
	Now() CalendarTime

	// OnTimeSync registers fn to run after each successful time
	// synchronisation of the source.
	OnTimeSync(fn func())
}

// System reads the host wall clock.
//
// It has no synchroniser of its own. Instead it treats the first transition
// from an untrustworthy reading (year before MinValidYear) to a trustworthy one
// as a sync, which is what a host without an RTC observes when NTP sets the
// clock after boot. Sync callbacks run on the goroutine calling Now.
type System struct {
	loc *time.Location
	now func() time.Time

	mu        sync.Mutex
	lastValid bool
	started   bool
	onSync    []func()
}

// NewSystem returns a System source resolving local time in loc (time.Local if nil).
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc, now: time.Now}
}

func (s *System) Location() *time.Location { return s.loc }

func (s *System) Now() CalendarTime {
	ct := FromTime(s.now().In(s.loc))

	s.mu.Lock()
	synced := s.started && !s.lastValid && ct.Valid
	s.started = true
	s.lastValid = ct.Valid
	var fns []func()
	if synced {
		fns = append(fns, s.onSync...)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return ct
}

func (s *System) OnTimeSync(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onSync = append(s.onSync, fn)
	s.mu.Unlock()
}
