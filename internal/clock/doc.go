// Package clock supplies calendar time to the trigger core.
//
// A Source reports the current local calendar time already broken down into
// fields (second, minute, hour, day-of-month, month, day-of-week, day-of-year)
// together with a comparable unix timestamp and a validity flag. The core never
// performs timezone arithmetic itself: resolving local time is the job of the
// source.
//
// Two sources are provided:
//   - System: the host wall clock, resolved through an IANA location. The
//     first reading that turns trustworthy after an untrustworthy one (year
//     before MinValidYear) counts as a sync and runs the OnTimeSync callbacks.
//   - Fake: a deterministic clock for tests. Time moves only through Set and
//     Advance, SetValid toggles validity, and Sync sets the time, marks it
//     valid and runs the OnTimeSync callbacks.
package clock
