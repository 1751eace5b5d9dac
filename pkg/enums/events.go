package enums

import "fmt"

// IntegrationEventType names the business events deliverable to subscribers.
type IntegrationEventType string

const (
	EventOrderCreated     IntegrationEventType = "order.created"
	EventOrderShipped     IntegrationEventType = "order.shipped"
	EventOrderDelivered   IntegrationEventType = "order.delivered"
	EventOrderReturned    IntegrationEventType = "order.returned"
	EventPaymentCollected IntegrationEventType = "payment.collected"
	EventStockUpdated     IntegrationEventType = "stock.updated"
)

var validIntegrationEventTypes = []IntegrationEventType{
	EventOrderCreated,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderReturned,
	EventPaymentCollected,
	EventStockUpdated,
}

// IsValid reports whether the value is a deliverable event type.
func (e IntegrationEventType) IsValid() bool {
	for _, candidate := range validIntegrationEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseIntegrationEventType converts raw input into IntegrationEventType.
func ParseIntegrationEventType(value string) (IntegrationEventType, error) {
	for _, candidate := range validIntegrationEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// IntegrationEventStatus tracks outbox event delivery state.
type IntegrationEventStatus string

const (
	EventStatusPending   IntegrationEventStatus = "pending"
	EventStatusCompleted IntegrationEventStatus = "completed"
)

// IsValid reports whether the value matches the event status enum.
func (s IntegrationEventStatus) IsValid() bool {
	return s == EventStatusPending || s == EventStatusCompleted
}
