package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Distributor is a network member holding a revolving credit line.
// OutstandingBalance is mutated only by credit ledger operations.
type Distributor struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string               `gorm:"column:name;not null"`
	Code               string               `gorm:"column:code;uniqueIndex;not null"`
	CreditLimit        decimal.NullDecimal  `gorm:"column:credit_limit;type:numeric(14,2)"`
	OutstandingBalance decimal.Decimal      `gorm:"column:outstanding_balance;type:numeric(14,2);not null;default:0"`
	IsActive           bool                 `gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
