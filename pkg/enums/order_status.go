package enums

import "fmt"

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusSubmitted  OrderStatus = "submitted"
	OrderStatusApproved   OrderStatus = "approved"
	OrderStatusRejected   OrderStatus = "rejected"
	OrderStatusDispatched OrderStatus = "dispatched"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusReturned   OrderStatus = "returned"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusSubmitted,
	OrderStatusApproved,
	OrderStatusRejected,
	OrderStatusDispatched,
	OrderStatusDelivered,
	OrderStatusReturned,
	OrderStatusCancelled,
}

// allowedTransitions is the single source of truth for the order state machine.
// rejected, returned and cancelled are terminal.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:      {OrderStatusSubmitted, OrderStatusCancelled},
	OrderStatusSubmitted:  {OrderStatusApproved, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusApproved:   {OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusDispatched: {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusReturned},
}

// IsValid reports whether the value matches the canonical order_status enum.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// ParseOrderStatus converts raw input into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
