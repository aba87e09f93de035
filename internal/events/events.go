// Package events is the in-process bus the reservation guard publishes
// booking outcomes on. Subscribers run synchronously on the publishing goroutine.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated  = "booking_created"
	EventBookingRejected = "booking_rejected"
)

// BookingEventPayload is the booking summary carried by both event types.
// Contact details stay in the ledger.
type BookingEventPayload struct {
	BookingID  string    `json:"booking_id,omitempty"`
	SlotKey    string    `json:"slot_key"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Technician string    `json:"technician,omitempty"`
	Service    string    `json:"service,omitempty"`
	Price      int64     `json:"price,omitempty"`
	Customer   string    `json:"customer,omitempty"`
	Outcome    string    `json:"outcome"`
	Notified   bool      `json:"notified"`
	AcceptedAt time.Time `json:"accepted_at,omitempty"`
}

func DecodeBookingPayload(event *Event) (BookingEventPayload, error) {
	var payload BookingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return payload, nil
}

type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

type EventHandler func(event *Event) error

type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type in subscription order.
// A failing or panicking handler does not stop the rest; their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for i, handler := range handlers {
		if err := dispatch(handler, event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler #%d: %w", event.Type, i+1, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes it. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return b.Publish(&Event{Type: eventType, Payload: raw})
}

func dispatch(handler EventHandler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(event)
}
