package journal

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Entry kinds.
const (
	KindFired     = "fired"
	KindJumpBack  = "jump_back"
	KindJumpAhead = "jump_ahead"
	KindRange     = "out_of_range"
	KindSynced    = "synced"
)

// Config selects and configures a driver. Driver "" or "none" disables the
// journal.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one journal record. At is the wall time of the write; Calendar is
// the calendar second the entry refers to.
type Entry struct {
	At       time.Time `json:"at"`
	Trigger  string    `json:"trigger"`
	Kind     string    `json:"kind"`
	Calendar string    `json:"calendar,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}
