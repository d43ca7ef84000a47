package clock

import (
	"fmt"
	"time"
)

// MinValidYear is the earliest year a source reports as trustworthy.
// A board whose RTC was never set (or a host before NTP) typically reads 1970.
const MinValidYear = 2019

// CalendarTime is a broken-down local time plus a comparable timestamp.
//
// Ordering (Before/After/Compare) is defined by Timestamp only. The calendar
// fields are kept consistent with it by FromTime and IncrementSecond.
type CalendarTime struct {
	Second     int // 0-60 (60 is the leap-second slot)
	Minute     int // 0-59
	Hour       int // 0-23
	DayOfWeek  int // 0-6, Sunday=0
	DayOfMonth int // 1-31
	DayOfYear  int // 1-366
	Month      int // 1-12
	Year       int

	// Timestamp is unix seconds.
	Timestamp int64

	// Valid reports whether the source currently trusts this time.
	Valid bool
}

// FromTime breaks t down in its own location. Valid is set when the year is at
// least MinValidYear and every field is within calendar bounds.
func FromTime(t time.Time) CalendarTime {
	ct := CalendarTime{
		Second:     t.Second(),
		Minute:     t.Minute(),
		Hour:       t.Hour(),
		DayOfWeek:  int(t.Weekday()),
		DayOfMonth: t.Day(),
		DayOfYear:  t.YearDay(),
		Month:      int(t.Month()),
		Year:       t.Year(),
		Timestamp:  t.Unix(),
	}
	ct.Valid = ct.Year >= MinValidYear && ct.FieldsInRange()
	return ct
}

// Time returns the instant described by Timestamp in loc (UTC if nil).
func (c CalendarTime) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(c.Timestamp, 0).In(loc)
}

// FieldsInRange is a basic sanity check of the calendar fields.
func (c CalendarTime) FieldsInRange() bool {
	return c.Second >= 0 && c.Second < 61 &&
		c.Minute >= 0 && c.Minute < 60 &&
		c.Hour >= 0 && c.Hour < 24 &&
		c.DayOfWeek >= 0 && c.DayOfWeek < 7 &&
		c.DayOfMonth >= 1 && c.DayOfMonth < 32 &&
		c.DayOfYear >= 1 && c.DayOfYear < 367 &&
		c.Month >= 1 && c.Month < 13
}

// IncrementSecond advances the time by one second, rolling the calendar fields
// over by plain field arithmetic (no timezone lookups).
func (c *CalendarTime) IncrementSecond() {
	c.Timestamp++
	c.Second++
	if c.Second < 60 {
		return
	}
	c.Second = 0
	c.Minute++
	if c.Minute < 60 {
		return
	}
	c.Minute = 0
	c.Hour++
	if c.Hour < 24 {
		return
	}
	c.Hour = 0
	c.DayOfWeek = (c.DayOfWeek + 1) % 7
	c.DayOfMonth++
	c.DayOfYear++
	if c.DayOfMonth <= DaysInMonth(c.Month, c.Year) {
		return
	}
	c.DayOfMonth = 1
	c.Month++
	if c.Month <= 12 {
		return
	}
	c.Month = 1
	c.Year++
	c.DayOfYear = 1
}

// Compare returns -1, 0 or +1 by timestamp.
func (c CalendarTime) Compare(o CalendarTime) int {
	switch {
	case c.Timestamp < o.Timestamp:
		return -1
	case c.Timestamp > o.Timestamp:
		return 1
	default:
		return 0
	}
}

func (c CalendarTime) Before(o CalendarTime) bool { return c.Timestamp < o.Timestamp }
func (c CalendarTime) After(o CalendarTime) bool  { return c.Timestamp > o.Timestamp }
func (c CalendarTime) Equal(o CalendarTime) bool  { return c.Timestamp == o.Timestamp }

func (c CalendarTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d dow=%d doy=%d ts=%d",
		c.Year, c.Month, c.DayOfMonth, c.Hour, c.Minute, c.Second, c.DayOfWeek, c.DayOfYear, c.Timestamp)
}

// DaysInMonth returns the length of month (1-12) in year. Out of range months
// report 31 so a malformed time never rolls over early.
func DaysInMonth(month, year int) int {
	switch month {
	case 4, 6, 9, 11:
		return 30
	case 2:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
