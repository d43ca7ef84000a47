package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// standardParser is the strict reference grammar used for linting. It accepts
// exactly five fields (plus @descriptors, month and weekday names and '?',
// none of which Compile understands; Lint rejects them before parsing).
var standardParser = robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow)

// robfigStar is the bit robfig sets on a field written as '*'.
const robfigStar = uint64(1) << 63

// Lint validates expression against the standard five field cron grammar and
// checks that Compile reads it the same way. Compile accepts anything; Lint is
// for configurations that prefer to reject typos instead of running a partial
// schedule. Day-of-week 7 is accepted as Sunday.
func Lint(expression string) error {
	s := strings.TrimSpace(expression)
	if s == "" {
		return fmt.Errorf("cron: empty expression")
	}
	if strings.HasPrefix(s, "@") {
		return fmt.Errorf("cron: descriptor %q not supported", s)
	}
	for i := 0; i < len(s); i++ {
		if classify(s[i]) == classOther {
			return fmt.Errorf("cron: unsupported character %q at offset %d", s[i], i)
		}
	}

	fs, err := Compile(s)
	if err != nil {
		return err
	}

	parts := strings.Fields(s)
	if len(parts) == len(expressionFields) {
		parts[len(parts)-1] = foldSunday(parts[len(parts)-1])
	}
	sched, err := standardParser.Parse(strings.Join(parts, " "))
	if err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	spec, ok := sched.(*robfig.SpecSchedule)
	if !ok {
		return fmt.Errorf("cron: unexpected schedule type %T", sched)
	}

	want := map[Field]uint64{
		FieldMinute:     spec.Minute,
		FieldHour:       spec.Hour,
		FieldDayOfMonth: spec.Dom,
		FieldMonth:      spec.Month,
		FieldDayOfWeek:  spec.Dow,
	}
	for _, f := range expressionFields {
		got := fs.Set(f).bits
		if f == FieldDayOfWeek {
			got = foldWeekdayBits(got)
		}
		if got != want[f]&^robfigStar {
			return fmt.Errorf("cron: %s field %q is read differently by the compiler", f, fieldText(parts, f))
		}
	}
	return nil
}

// foldWeekdayBits moves the Sunday alias in slot 7 onto slot 0.
func foldWeekdayBits(b uint64) uint64 {
	if b&(1<<7) != 0 {
		b |= 1
	}
	return b &^ (1 << 7)
}

func fieldText(parts []string, f Field) string {
	for i, ef := range expressionFields {
		if ef == f && i < len(parts) {
			return parts[i]
		}
	}
	return ""
}

// foldSunday rewrites day-of-week terms that reach 7 into the 0-6 form the
// standard grammar accepts. Terms it cannot read are left for the parser to
// reject.
func foldSunday(field string) string {
	terms := strings.Split(field, ",")
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		out = append(out, foldSundayTerm(term))
	}
	return strings.Join(out, ",")
}

// foldSundayTerm handles one list term. "A/S" runs to 7 here but to 6 in the
// standard grammar, so it is rewritten too.
func foldSundayTerm(term string) string {
	base, stepText, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil || n < 1 {
			return term
		}
		step = n
	}
	loText, hiText, isRange := strings.Cut(base, "-")
	lo, err := strconv.Atoi(loText)
	if err != nil || lo > 7 {
		return term
	}
	hi := lo
	switch {
	case isRange:
		if hi, err = strconv.Atoi(hiText); err != nil {
			return term
		}
	case hasStep:
		hi = 7
	}
	if hi != 7 {
		return term
	}
	if lo == 7 {
		return "0"
	}
	folded := fmt.Sprintf("%d-6", lo)
	if hasStep {
		folded += "/" + stepText
	}
	if (7-lo)%step == 0 {
		folded += ",0"
	}
	return folded
}

// Preview returns up to n upcoming firing times after from for the compiled
// sets fs (seconds included), formatted for logs ("2006-01-02 15:04:05", comma
// separated) in from's location. It returns "" when a set is empty and the
// schedule can never fire.
func Preview(fs Fields, from time.Time, n int) string {
	if n <= 0 {
		return ""
	}
	spec := &robfig.SpecSchedule{
		// Go time has no leap second, slot 60 never matches
		Second:   fs.Set(FieldSecond).bits &^ (1 << 60),
		Minute:   fs.Set(FieldMinute).bits,
		Hour:     fs.Set(FieldHour).bits,
		Dom:      fs.Set(FieldDayOfMonth).bits,
		Month:    fs.Set(FieldMonth).bits,
		Dow:      foldWeekdayBits(fs.Set(FieldDayOfWeek).bits),
		Location: from.Location(),
	}
	for _, b := range []uint64{spec.Second, spec.Minute, spec.Hour, spec.Dom, spec.Month, spec.Dow} {
		if b == 0 {
			return ""
		}
	}
	// the star bit makes robfig require both day fields, as Matches does
	spec.Dom |= robfigStar

	var b strings.Builder
	t := from
	for i := 0; i < n; i++ {
		t = spec.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
