package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is a fire-and-forget record of a mutating action.
type AuditLog struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Action    string          `gorm:"column:action;not null"`
	Resource  *string         `gorm:"column:resource"`
	UserID    *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	Metadata  json.RawMessage `gorm:"column:metadata;type:jsonb"`
	IPAddress *string         `gorm:"column:ip_address"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
