package cron

import (
	"iter"

	"crontick/internal/clock"
)

// Field names one schedulable time component.
type Field int

const (
	FieldSecond Field = iota
	FieldMinute
	FieldHour
	FieldDayOfMonth
	FieldMonth
	FieldDayOfWeek

	numFields
)

// expressionFields is the positional binding of the five expression fields.
var expressionFields = [...]Field{FieldMinute, FieldHour, FieldDayOfMonth, FieldMonth, FieldDayOfWeek}

type domain struct {
	name     string
	min, max int
}

// Day-of-month and month reserve index 0 so values index the set directly.
// Day-of-week has 8 slots: 0 and 7 are both Sunday.
var domains = [numFields]domain{
	FieldSecond:     {name: "second", min: 0, max: 60},
	FieldMinute:     {name: "minute", min: 0, max: 59},
	FieldHour:       {name: "hour", min: 0, max: 23},
	FieldDayOfMonth: {name: "day-of-month", min: 1, max: 31},
	FieldMonth:      {name: "month", min: 1, max: 12},
	FieldDayOfWeek:  {name: "day-of-week", min: 0, max: 7},
}

func (f Field) valid() bool { return f >= 0 && f < numFields }

func (f Field) String() string {
	if !f.valid() {
		return "unknown"
	}
	return domains[f].name
}

// Min is the smallest value a real time can carry in this field.
func (f Field) Min() int {
	if !f.valid() {
		return 0
	}
	return domains[f].min
}

// Max is the domain ceiling.
func (f Field) Max() int {
	if !f.valid() {
		return -1
	}
	return domains[f].max
}

// component extracts the field's value from t.
func (f Field) component(t clock.CalendarTime) int {
	switch f {
	case FieldSecond:
		return t.Second
	case FieldMinute:
		return t.Minute
	case FieldHour:
		return t.Hour
	case FieldDayOfMonth:
		return t.DayOfMonth
	case FieldMonth:
		return t.Month
	case FieldDayOfWeek:
		return t.DayOfWeek
	default:
		return -1
	}
}

// Fields holds one Set per field. Use NewFields; the zero value has empty
// domains and rejects every insert.
type Fields struct {
	sets [numFields]Set
}

// NewFields returns six empty sets sized to their domains.
func NewFields() Fields {
	var fs Fields
	for f := Field(0); f < numFields; f++ {
		fs.sets[f] = NewSet(domains[f].max + 1)
	}
	return fs
}

// Set returns a copy of the set for f.
func (fs *Fields) Set(f Field) Set {
	if !f.valid() {
		return Set{}
	}
	return fs.sets[f]
}

func (fs *Fields) Add(f Field, v int) {
	if !f.valid() {
		return
	}
	fs.sets[f].Add(v)
	fs.pairWeekday(f)
}

func (fs *Fields) AddRange(f Field, lo, hi, step int) {
	if !f.valid() {
		return
	}
	fs.sets[f].AddRange(lo, hi, step)
	fs.pairWeekday(f)
}

// Fill inserts every value a real time can carry in f. The reserved slot 0 of
// day-of-month and month stays unset.
func (fs *Fields) Fill(f Field) {
	if !f.valid() {
		return
	}
	fs.sets[f].AddRange(domains[f].min, domains[f].max, 1)
}

// All yields each field with its set, seconds first.
func (fs *Fields) All() iter.Seq2[Field, Set] {
	return func(yield func(Field, Set) bool) {
		for f := Field(0); f < numFields; f++ {
			if !yield(f, fs.sets[f]) {
				return
			}
		}
	}
}

func (fs *Fields) Clear(f Field) {
	if !f.valid() {
		return
	}
	fs.sets[f].Clear()
}

// pairWeekday keeps the two Sunday slots in step.
func (fs *Fields) pairWeekday(f Field) {
	if f != FieldDayOfWeek {
		return
	}
	dow := &fs.sets[FieldDayOfWeek]
	if dow.Contains(0) || dow.Contains(7) {
		dow.Add(0)
		dow.Add(7)
	}
}

// Matches reports whether every field contains the corresponding component
// of t. Validity of t is the caller's concern.
func (fs *Fields) Matches(t clock.CalendarTime) bool {
	for f := Field(0); f < numFields; f++ {
		if !fs.sets[f].Contains(f.component(t)) {
			return false
		}
	}
	return true
}
