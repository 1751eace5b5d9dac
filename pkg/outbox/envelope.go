package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

// DeliveryEnvelope is the wire body POSTed to subscriber endpoints.
type DeliveryEnvelope struct {
	ID        uuid.UUID                  `json:"id"`
	EventType enums.IntegrationEventType `json:"eventType"`
	CreatedAt time.Time                  `json:"createdAt"`
	Data      json.RawMessage            `json:"data"`
}
