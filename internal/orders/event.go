package orders

import "time"

// EventType tags entries in the append-only event log.
type EventType string

const (
	EventOrder    EventType = "ORDER"
	EventTrade    EventType = "TRADE"
	EventPosition EventType = "POSITION"
	EventAccount  EventType = "ACCOUNT"
	EventError    EventType = "ERROR"
	EventTimer    EventType = "TIMER"
)

// Event is a recorded system event. The order payload is snapshotted at
// construction so later mutation of the source order does not alter the
// persisted record.
type Event struct {
	Type      EventType `json:"type"`
	Data      *Order    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent snapshots an order into an ORDER event.
func NewOrderEvent(o *Order) Event {
	return NewEvent(EventOrder, o)
}

// NewEvent snapshots an order into an event of the given type.
func NewEvent(t EventType, o *Order) Event {
	var data *Order
	if o != nil {
		data = o.Clone()
	}
	return Event{
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
	}
}
