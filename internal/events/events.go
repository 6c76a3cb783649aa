package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventRequestCreated  = "request_created"
	EventRequestAccepted = "request_accepted"
	EventRequestDenied   = "request_denied"
	EventRequestAmended  = "request_amended"
	EventScheduleDayOpen = "schedule_day_opened"
)

// RequestEventPayload describes the minimal request snapshot for event consumers.
type RequestEventPayload struct {
	RequestID  int64     `json:"request_id"`
	BarberID   int64     `json:"barber_id"`
	ClientID   int64     `json:"client_id,omitempty"`
	Day        string    `json:"day"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	FinalPrice int64     `json:"final_price"`
	Comment    string    `json:"comment,omitempty"`
}

// ScheduleDayEventPayload announces a freshly generated schedule day.
type ScheduleDayEventPayload struct {
	BarberID int64  `json:"barber_id"`
	Day      string `json:"day"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
