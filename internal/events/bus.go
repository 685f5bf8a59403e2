package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventOrderPlaced    EventType = "ORDER_PLACED"
	EventOrderUpdated   EventType = "ORDER_UPDATED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventOrderSynced    EventType = "ORDER_SYNCED"
	EventFileSynced     EventType = "FILE_SYNCED"
	EventFileDeleted    EventType = "FILE_DELETED"
	EventSyncStatus     EventType = "SYNC_STATUS"
	EventError          EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID, symbol, direction, status string, price, volume float64) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id":  orderID,
			"symbol":    symbol,
			"direction": direction,
			"status":    status,
			"price":     price,
			"volume":    volume,
		},
	})
}

// PublishOrderUpdated publishes an order state change event
func (eb *EventBus) PublishOrderUpdated(orderID, symbol, status string, filledVolume float64) {
	eb.Publish(Event{
		Type: EventOrderUpdated,
		Data: map[string]interface{}{
			"order_id":      orderID,
			"symbol":        symbol,
			"status":        status,
			"filled_volume": filledVolume,
		},
	})
}

// PublishOrderSynced publishes an event for an order applied from the
// shared store
func (eb *EventBus) PublishOrderSynced(orderID, symbol, status, source string) {
	eb.Publish(Event{
		Type: EventOrderSynced,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"status":   status,
			"source":   source,
		},
	})
}

// PublishFileSynced publishes a file replication event
func (eb *EventBus) PublishFileSynced(key string) {
	eb.Publish(Event{
		Type: EventFileSynced,
		Data: map[string]interface{}{
			"key": key,
		},
	})
}

// PublishFileDeleted publishes a file removal event
func (eb *EventBus) PublishFileDeleted(key string) {
	eb.Publish(Event{
		Type: EventFileDeleted,
		Data: map[string]interface{}{
			"key": key,
		},
	})
}

// PublishSyncStatus publishes the sync loop's connection state
func (eb *EventBus) PublishSyncStatus(connected bool, detail string) {
	eb.Publish(Event{
		Type: EventSyncStatus,
		Data: map[string]interface{}{
			"connected": connected,
			"detail":    detail,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
