// Package cron is the scheduling core: a lenient cron expression compiler and
// a poll-driven trigger that fires once per matching whole second.
//
// # Expressions
//
// Compile takes five whitespace separated fields (minute, hour, day-of-month,
// month, day-of-week). Each field is a comma separated list of "*", "N",
// "A-B", "A/S" or "A-B/S". Day-of-week 0 and 7 both mean Sunday. There is no
// seconds field in the expression; Trigger.SetExpression defaults it to 0.
//
// # Polling
//
// Trigger.Loop is called from a periodic control loop. Each call walks the
// cursor forward one second at a time up to the current time and fires for
// every matching second, so an irregular poll cadence never skips a minute.
// Jumps larger than the drift threshold (900s by default) are treated as
// clock synchronisations: a forward jump snaps the cursor without firing, a
// backward jump keeps the cursor until the clock catches up.
//
// Lint checks an expression against robfig/cron's standard parser and rejects
// anything Compile would read differently. Preview renders upcoming firing
// times of compiled sets through robfig/cron's SpecSchedule.
package cron
