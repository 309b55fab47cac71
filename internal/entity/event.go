package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventOrderUpdate            EventType = "OrderUpdate"
	EventAppointmentUpdate      EventType = "AppointmentUpdate"
	EventAdminOrderUpdate       EventType = "AdminOrderUpdate"
	EventAdminAppointmentUpdate EventType = "AdminAppointmentUpdate"
)

// IsOrder reports whether the payload of this event type is an Order.
func (t EventType) IsOrder() bool {
	return t == EventOrderUpdate || t == EventAdminOrderUpdate
}

func (t EventType) IsAppointment() bool {
	return t == EventAppointmentUpdate || t == EventAdminAppointmentUpdate
}

// RealtimeEvent is the bus envelope. Payload is always a complete snapshot
// of the entity, never a patch.
type RealtimeEvent struct {
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

func NewOrderEvent(t EventType, o Order, at time.Time) (RealtimeEvent, error) {
	if !t.IsOrder() {
		return RealtimeEvent{}, fmt.Errorf("event type %s does not carry an order", t)
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return RealtimeEvent{}, err
	}
	return RealtimeEvent{Type: t, Payload: payload, ReceivedAt: at}, nil
}

func NewAppointmentEvent(t EventType, a Appointment, at time.Time) (RealtimeEvent, error) {
	if !t.IsAppointment() {
		return RealtimeEvent{}, fmt.Errorf("event type %s does not carry an appointment", t)
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return RealtimeEvent{}, err
	}
	return RealtimeEvent{Type: t, Payload: payload, ReceivedAt: at}, nil
}

func (e RealtimeEvent) Order() (Order, error) {
	var o Order
	if !e.Type.IsOrder() {
		return o, fmt.Errorf("event type %s does not carry an order", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &o); err != nil {
		return o, fmt.Errorf("decode order snapshot: %w", err)
	}
	return o, nil
}

func (e RealtimeEvent) Appointment() (Appointment, error) {
	var a Appointment
	if !e.Type.IsAppointment() {
		return a, fmt.Errorf("event type %s does not carry an appointment", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		return a, fmt.Errorf("decode appointment snapshot: %w", err)
	}
	return a, nil
}
