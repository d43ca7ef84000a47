package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Source. Time stands still until Set, Advance or Sync
// is called.
//
// Fake is safe for concurrent use. Sync callbacks are invoked synchronously
// from Sync, outside the internal lock.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	valid   bool
	onSync  []func()
}

// NewFake returns a valid Fake set to initial. The calendar fields are broken
// down in initial's location.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial, valid: true}
}

func (f *Fake) Now() CalendarTime {
	f.mu.Lock()
	defer f.mu.Unlock()
	ct := FromTime(f.current)
	ct.Valid = f.valid
	return ct
}

// Set moves the clock to t without a sync notification.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

// Advance moves the clock by d (which may be negative).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}

// SetValid toggles whether Now reports the time as trustworthy.
func (f *Fake) SetValid(valid bool) {
	f.mu.Lock()
	f.valid = valid
	f.mu.Unlock()
}

// Sync sets the clock to t, marks it valid and notifies sync subscribers.
func (f *Fake) Sync(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.valid = true
	fns := append([]func(){}, f.onSync...)
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (f *Fake) OnTimeSync(fn func()) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.onSync = append(f.onSync, fn)
	f.mu.Unlock()
}
