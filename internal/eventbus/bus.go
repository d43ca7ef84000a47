package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the daemon.
const (
	TriggerFired   = "trigger.fired"
	ClockJumpBack  = "clock.jump_back"
	ClockJumpAhead = "clock.jump_ahead"
	ClockRange     = "clock.out_of_range"
	ClockSynced    = "clock.synced"
	ConfigReloaded = "config.reloaded"
)

// Event is an in-memory notification. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Fired is the Data of a TriggerFired event.
type Fired struct {
	Trigger string `json:"trigger"`
	At      string `json:"at"`
}

// ClockAnomaly is the Data of the clock.* anomaly events.
type ClockAnomaly struct {
	Trigger string `json:"trigger"`
	Cursor  string `json:"cursor"`
	Now     string `json:"now"`
}

// Reloaded is the Data of a ConfigReloaded event.
type Reloaded struct {
	Sections []string `json:"sections"`
	Triggers []string `json:"triggers,omitempty"`
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel of events matching types (all when empty)
	// and a function that detaches and closes it.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch    chan Event
	types map[string]bool
}

func (s *subscriber) wants(t string) bool {
	return len(s.types) == 0 || s.types[t]
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// sends happen under the read lock so unsubscribe cannot close a channel
	// mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
