package events

import (
	"sync"
	"testing"
	"time"
)

// collector gathers events across subscriber goroutines.
type collector struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func newCollector(expect int) *collector {
	return &collector{done: make(chan struct{}, expect)}
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	c := newCollector(2)
	bus.Subscribe(EventOrderPlaced, c.handle)

	bus.PublishOrderPlaced("o1", "510300", "BUY", "SUBMITTED", 3.456, 100)
	bus.PublishOrderUpdated("o1", "510300", "FILLED", 100) // different type, not delivered
	bus.PublishOrderPlaced("o2", "600519", "SELL", "SUBMITTING", 1800, 10)

	got := c.wait(t, 2)
	for _, e := range got {
		if e.Type != EventOrderPlaced {
			t.Errorf("unexpected event type %s", e.Type)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()
	c := newCollector(3)
	bus.SubscribeAll(c.handle)

	bus.PublishFileSynced("jailbird:account:accounts/etf.json")
	bus.PublishFileDeleted("jailbird:account:accounts/old.json")
	bus.PublishSyncStatus(false, "shared store unreachable")

	got := c.wait(t, 3)
	types := make(map[EventType]bool)
	for _, e := range got {
		types[e.Type] = true
	}
	for _, want := range []EventType{EventFileSynced, EventFileDeleted, EventSyncStatus} {
		if !types[want] {
			t.Errorf("missing event type %s", want)
		}
	}
}

func TestPublishErrorIncludesCause(t *testing.T) {
	bus := NewEventBus()
	c := newCollector(1)
	bus.Subscribe(EventError, c.handle)

	bus.PublishError("ordersync", "publish failed", errTest)

	got := c.wait(t, 1)
	if got[0].Data["source"] != "ordersync" {
		t.Errorf("source = %v", got[0].Data["source"])
	}
	if got[0].Data["error"] != errTest.Error() {
		t.Errorf("error = %v", got[0].Data["error"])
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errTest = testErr("boom")
