package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

// Integration is an external ERP/CRM connector owning webhook subscriptions.
type Integration struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Connector      string    `gorm:"column:connector;uniqueIndex;not null"`
	CredentialsRef *string   `gorm:"column:credentials_ref"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IntegrationWebhook is one subscriber endpoint for one event type.
// (integration_id, event_type, target_url) is unique.
type IntegrationWebhook struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IntegrationID uuid.UUID                  `gorm:"column:integration_id;type:uuid;not null;index"`
	EventType     enums.IntegrationEventType `gorm:"column:event_type;type:event_type_enum;not null"`
	TargetURL     string                     `gorm:"column:target_url;not null"`
	Secret        string                     `gorm:"column:secret;not null"`
	IsActive      bool                       `gorm:"column:is_active;not null;default:true"`
	LastSuccessAt *time.Time                 `gorm:"column:last_success_at"`
	LastErrorAt   *time.Time                 `gorm:"column:last_error_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// IntegrationEvent is a durable outbox row awaiting delivery. Rows are never
// deleted; completed is the terminal state.
type IntegrationEvent struct {
	ID        uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType enums.IntegrationEventType   `gorm:"column:event_type;type:event_type_enum;not null;index"`
	Payload   json.RawMessage              `gorm:"column:payload;type:jsonb;not null"`
	Status    enums.IntegrationEventStatus `gorm:"column:status;type:event_status_enum;not null;default:pending;index"`
	Attempts  int                          `gorm:"column:attempts;not null;default:0"`
	CreatedAt time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

// WebhookDelivery is the immutable audit record of one delivery attempt to
// one webhook for one event.
type WebhookDelivery struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WebhookID    uuid.UUID            `gorm:"column:webhook_id;type:uuid;not null;index"`
	EventID      uuid.UUID            `gorm:"column:event_id;type:uuid;not null;index"`
	Status       enums.DeliveryStatus `gorm:"column:status;type:delivery_status_enum;not null"`
	ResponseCode *int                 `gorm:"column:response_code"`
	ResponseBody *string              `gorm:"column:response_body"`
	ErrorMessage *string              `gorm:"column:error_message"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
}
