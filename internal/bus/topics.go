// Package bus defines the realtime topic topology and its transports.
//
// Logical topics are the per-principal families user/{id}/orders and
// user/{id}/appointments plus the role-broadcast topics admin/orders and
// admin/appointments. Every committed mutation is published twice: once on
// the owner's topic and once on the admin topic.
package bus

import (
	"fmt"
	"strings"
	"time"

	"lifecycle-service/internal/entity"
)

const (
	AdminOrdersTopic       = "admin/orders"
	AdminAppointmentsTopic = "admin/appointments"
)

func UserOrdersTopic(userID string) string {
	return fmt.Sprintf("user/%s/orders", userID)
}

func UserAppointmentsTopic(userID string) string {
	return fmt.Sprintf("user/%s/appointments", userID)
}

// TopicsFor returns the topic set a session of p subscribes to. Admin topics
// are only included for the admin role.
func TopicsFor(p entity.Principal) []string {
	topics := []string{UserOrdersTopic(p.UserID), UserAppointmentsTopic(p.UserID)}
	if p.IsAdmin() {
		topics = append(topics, AdminOrdersTopic, AdminAppointmentsTopic)
	}
	return topics
}

// OrderMessages builds the owner and admin messages for one committed order
// mutation.
func OrderMessages(o entity.Order, at time.Time) ([]Message, error) {
	user, err := entity.NewOrderEvent(entity.EventOrderUpdate, o, at)
	if err != nil {
		return nil, err
	}
	admin, err := entity.NewOrderEvent(entity.EventAdminOrderUpdate, o, at)
	if err != nil {
		return nil, err
	}
	return []Message{
		{Topic: UserOrdersTopic(o.UserID), Key: o.ID, Event: user},
		{Topic: AdminOrdersTopic, Key: o.ID, Event: admin},
	}, nil
}

func AppointmentMessages(a entity.Appointment, at time.Time) ([]Message, error) {
	user, err := entity.NewAppointmentEvent(entity.EventAppointmentUpdate, a, at)
	if err != nil {
		return nil, err
	}
	admin, err := entity.NewAppointmentEvent(entity.EventAdminAppointmentUpdate, a, at)
	if err != nil {
		return nil, err
	}
	return []Message{
		{Topic: UserAppointmentsTopic(a.UserID), Key: a.ID, Event: user},
		{Topic: AdminAppointmentsTopic, Key: a.ID, Event: admin},
	}, nil
}

// Topology maps logical topics onto the physical Kafka topics.
type Topology struct {
	OrdersTopic       string
	AppointmentsTopic string
}

var DefaultTopology = Topology{
	OrdersTopic:       "lifecycle-orders",
	AppointmentsTopic: "lifecycle-appointments",
}

// Physical returns the Kafka topic carrying logical.
func (t Topology) Physical(logical string) (string, error) {
	switch {
	case strings.HasSuffix(logical, "/orders"):
		return t.OrdersTopic, nil
	case strings.HasSuffix(logical, "/appointments"):
		return t.AppointmentsTopic, nil
	}
	return "", fmt.Errorf("unknown logical topic %q", logical)
}

// PhysicalSet returns the distinct physical topics for logical.
func (t Topology) PhysicalSet(logical []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, topic := range logical {
		physical, err := t.Physical(topic)
		if err != nil {
			return nil, err
		}
		if !seen[physical] {
			seen[physical] = true
			out = append(out, physical)
		}
	}
	return out, nil
}
