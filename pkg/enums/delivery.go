package enums

// DeliveryStatus records the outcome of one webhook delivery attempt.
type DeliveryStatus string

const (
	// DeliveryDelivered means the endpoint returned a 2xx response.
	DeliveryDelivered DeliveryStatus = "delivered"
	// DeliveryFailed means the endpoint responded with a non-2xx status.
	DeliveryFailed DeliveryStatus = "failed"
	// DeliveryErrored means the request never completed (transport error).
	DeliveryErrored DeliveryStatus = "errored"
)

// IsValid reports whether the value matches the delivery status enum.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryDelivered, DeliveryFailed, DeliveryErrored:
		return true
	}
	return false
}
