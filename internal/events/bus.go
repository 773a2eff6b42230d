package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventPositionOpened   EventType = "POSITION_OPENED"
	EventPositionClosed   EventType = "POSITION_CLOSED"
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventStrategyToggled  EventType = "STRATEGY_TOGGLED"
	EventBalanceUpdate    EventType = "BALANCE_UPDATE"
	EventArbOpportunity   EventType = "ARB_OPPORTUNITY"
	EventArbExecuted      EventType = "ARB_EXECUTED"
	EventWorkerCycleError EventType = "WORKER_CYCLE_ERROR"
	EventError            EventType = "ERROR"
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

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishPositionOpened publishes a position opened event
func (eb *EventBus) PublishPositionOpened(userID, exchange, pair, price, quantity string) {
	eb.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"user_id":     userID,
			"exchange":    exchange,
			"pair":        pair,
			"entry_price": price,
			"quantity":    quantity,
		},
	})
}

// PublishPositionClosed publishes a position closed event
func (eb *EventBus) PublishPositionClosed(userID, exchange, pair, reason, pnl, pnlPercent string) {
	eb.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"user_id":     userID,
			"exchange":    exchange,
			"pair":        pair,
			"exit_reason": reason,
			"pnl":         pnl,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishArbExecuted publishes an arbitrage execution event
func (eb *EventBus) PublishArbExecuted(userID, exchange, sequence, profitPercent string, dryRun bool) {
	eb.Publish(Event{
		Type: EventArbExecuted,
		Data: map[string]interface{}{
			"user_id":        userID,
			"exchange":       exchange,
			"sequence":       sequence,
			"profit_percent": profitPercent,
			"dry_run":        dryRun,
		},
	})
}
