package supervisor

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	logx "crontick/pkg/logx"
)

// Looper is polled once per tick.
type Looper interface {
	Loop()
}

// Poller is the control loop. It owns its Loopers: they are only touched on
// the goroutine running Run, and changes are funnelled through Do so they
// happen between polls.
type Poller struct {
	interval time.Duration
	log      logx.Logger

	watchdogEvery time.Duration
	watchdog      func()

	loopers []Looper
	inbox   chan func()

	polls  atomic.Uint64
	panics atomic.Uint64
}

type PollerOption func(*Poller)

func WithPollLogger(log logx.Logger) PollerOption { return func(p *Poller) { p.log = log } }

// WithWatchdog calls ping from the loop at most once per every. every <= 0
// disables it.
func WithWatchdog(every time.Duration, ping func()) PollerOption {
	return func(p *Poller) {
		if every > 0 && ping != nil {
			p.watchdogEvery, p.watchdog = every, ping
		}
	}
}

// NewPoller returns a Poller ticking every interval (one second if <= 0).
func NewPoller(interval time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	p := &Poller{interval: interval, log: logx.Nop(), inbox: make(chan func(), 8)}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetLoopers replaces the polled set. Call it before Run, or from a function
// passed to Do.
func (p *Poller) SetLoopers(ls []Looper) { p.loopers = ls }

func (p *Poller) Loopers() []Looper { return p.loopers }

// Do queues fn to run on the loop goroutine between polls. It blocks only
// while the queue is full.
func (p *Poller) Do(ctx context.Context, fn func()) error {
	select {
	case p.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) Polls() uint64  { return p.polls.Load() }
func (p *Poller) Panics() uint64 { return p.panics.Load() }

// Poll calls Loop on every Looper in order. A panicking Looper is logged and
// skipped for this tick only.
func (p *Poller) Poll() {
	p.polls.Add(1)
	for i, l := range p.loopers {
		fields := []logx.Field{logx.Int("index", i)}
		if n, ok := l.(named); ok {
			fields = append(fields, logx.String("trigger", n.Name()))
		}
		p.guard(l.Loop, fields...)
	}
}

type named interface{ Name() string }

func (p *Poller) guard(fn func(), fields ...logx.Field) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			fields = append(fields, logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			p.log.Error("poll callback panicked", fields...)
		}
	}()
	fn()
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	tick := time.NewTicker(p.interval)
	defer tick.Stop()

	var lastPing time.Time
	p.log.Info("poll loop started", logx.Duration("interval", p.interval), logx.Int("loopers", len(p.loopers)))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("poll loop stopped", logx.Uint64("polls", p.polls.Load()))
			return nil
		case fn := <-p.inbox:
			if fn != nil {
				p.guard(fn, logx.String("what", "update"))
			}
		case now := <-tick.C:
			p.Poll()
			if p.watchdog != nil && now.Sub(lastPing) >= p.watchdogEvery {
				lastPing = now
				p.watchdog()
			}
		}
	}
}
