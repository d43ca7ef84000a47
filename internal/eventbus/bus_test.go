package eventbus

import "testing"

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	clock, unsubClock := b.Subscribe(4, ClockJumpBack, ClockJumpAhead)
	defer unsubClock()

	b.Publish(Event{Type: TriggerFired, Data: Fired{Trigger: "a"}})
	b.Publish(Event{Type: ClockJumpBack})

	if got := len(all); got != 2 {
		t.Fatalf("all subscriber got %d events, want 2", got)
	}
	if got := len(clock); got != 1 {
		t.Fatalf("clock subscriber got %d events, want 1", got)
	}
	e := <-clock
	if e.Type != ClockJumpBack || e.Time.IsZero() {
		t.Fatalf("event = %+v", e)
	}
	first := <-all
	if f, ok := first.Data.(Fired); !ok || f.Trigger != "a" {
		t.Fatalf("data = %#v", first.Data)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TriggerFired})
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	unsub()
	unsub()
	<-ch
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// publishing after unsubscribe must not panic
	b.Publish(Event{Type: TriggerFired})
}
