package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalUpdate   EventType = "SIGNAL_UPDATE"
	EventPriceUpdate    EventType = "PRICE_UPDATE"
	EventMarketOverview EventType = "MARKET_OVERVIEW"
	EventMacroUpdate    EventType = "MACRO_UPDATE"
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
	allSubs     []Subscriber
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

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer never blocks the pipeline.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalUpdate publishes a freshly aggregated signal
func (eb *EventBus) PublishSignalUpdate(symbol, band string, score float64, confidence int) {
	eb.Publish(Event{
		Type: EventSignalUpdate,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"signal":     band,
			"score":      score,
			"confidence": confidence,
		},
	})
}

// PublishPriceUpdate publishes a price update event
func (eb *EventBus) PublishPriceUpdate(symbol string, price, change24h float64) {
	eb.Publish(Event{
		Type: EventPriceUpdate,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"price":      price,
			"change_24h": change24h,
		},
	})
}

// PublishMarketOverview publishes a refreshed market overview
func (eb *EventBus) PublishMarketOverview(sentiment string, fearGreed int) {
	eb.Publish(Event{
		Type: EventMarketOverview,
		Data: map[string]interface{}{
			"sentiment":  sentiment,
			"fear_greed": fearGreed,
		},
	})
}

// PublishMacroUpdate publishes a macro context refresh
func (eb *EventBus) PublishMacroUpdate(score int, stale bool) {
	eb.Publish(Event{
		Type: EventMacroUpdate,
		Data: map[string]interface{}{
			"macro_score": score,
			"stale":       stale,
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
