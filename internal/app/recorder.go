package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"crontick/internal/clock"
	"crontick/internal/cron"
	"crontick/internal/eventbus"
	"crontick/internal/journal"
	logx "crontick/pkg/logx"
)

// recorder publishes firings and clock anomalies on the bus and queues them
// for the journal. Nothing it does blocks the poll loop: journal writes
// happen on the goroutine running drain, and a full queue drops the entry.
type recorder struct {
	log   logx.Logger
	bus   eventbus.Bus
	store journal.Store
	queue chan journal.Entry

	dropped atomic.Uint64
}

func newRecorder(log logx.Logger, bus eventbus.Bus, store journal.Store) *recorder {
	return &recorder{log: log, bus: bus, store: store, queue: make(chan journal.Entry, 256)}
}

func (r *recorder) fired(trigger string, at clock.CalendarTime) {
	r.bus.Publish(eventbus.Event{Type: eventbus.TriggerFired, Data: eventbus.Fired{Trigger: trigger, At: at.String()}})
	r.enqueue(journal.Entry{Trigger: trigger, Kind: journal.KindFired, Calendar: at.String()})
}

func (r *recorder) anomaly(a cron.Anomaly) {
	var evType, kind string
	switch a.Kind {
	case cron.AnomalyJumpBack:
		evType, kind = eventbus.ClockJumpBack, journal.KindJumpBack
	case cron.AnomalyJumpAhead:
		evType, kind = eventbus.ClockJumpAhead, journal.KindJumpAhead
	case cron.AnomalyOutOfRange:
		evType, kind = eventbus.ClockRange, journal.KindRange
	default:
		return
	}
	r.bus.Publish(eventbus.Event{Type: evType, Data: eventbus.ClockAnomaly{
		Trigger: a.Trigger,
		Cursor:  a.Cursor.String(),
		Now:     a.Now.String(),
	}})
	r.enqueue(journal.Entry{
		Trigger:  a.Trigger,
		Kind:     kind,
		Calendar: a.Now.String(),
		Detail:   fmt.Sprintf("cursor=%d now=%d", a.Cursor.Timestamp, a.Now.Timestamp),
	})
}

func (r *recorder) synced(now clock.CalendarTime) {
	r.bus.Publish(eventbus.Event{Type: eventbus.ClockSynced})
	r.enqueue(journal.Entry{Kind: journal.KindSynced, Calendar: now.String()})
}

func (r *recorder) enqueue(e journal.Entry) {
	if r.store == nil {
		return
	}
	e.At = time.Now()
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

// drain writes queued entries until ctx is done, then flushes what is left.
func (r *recorder) drain(ctx context.Context) error {
	if r.store == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					if n := r.dropped.Load(); n > 0 {
						r.log.Warn("journal entries dropped", logx.Uint64("count", n))
					}
					return nil
				}
			}
		}
	}
}

func (r *recorder) write(e journal.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		r.log.Warn("journal append failed", logx.String("kind", e.Kind), logx.Err(err))
	}
}
