package cron

import "errors"

var (
	// ErrTooManyFields is returned when an expression has more than five
	// fields. The fields before the sixth are still compiled.
	ErrTooManyFields = errors.New("cron: more than five fields")

	// ErrTooFewFields is returned when an expression ends before the fifth
	// field. Missing fields stay empty and match nothing.
	ErrTooFewFields = errors.New("cron: fewer than five fields")
)
