package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventPatientCreated            EventType = "patient_created"
	EventPatientUpdated            EventType = "patient_updated"
	EventPatientDeleted            EventType = "patient_deleted"
	EventMedicineCreated           EventType = "medicine_created"
	EventMedicineUpdated           EventType = "medicine_updated"
	EventMedicineDeleted           EventType = "medicine_deleted"
	EventPosologyCreated           EventType = "posology_created"
	EventPosologyUpdated           EventType = "posology_updated"
	EventPosologyDeleted           EventType = "posology_deleted"
	EventPrescriptionCreated       EventType = "prescription_created"
	EventPrescriptionMedicineAdded EventType = "prescription_medicine_added"
	EventCatalogImported           EventType = "catalog_imported"
	EventStoreRestored             EventType = "store_restored"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
