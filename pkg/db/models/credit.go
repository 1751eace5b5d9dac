package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

// CreditLedgerEntry is an append-only record of a credit-affecting
// transaction. BalanceAfter is computed from the distributor's most recent
// prior entry at insert time.
type CreditLedgerEntry struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DistributorID uuid.UUID           `gorm:"column:distributor_id;type:uuid;not null;index"`
	TxnType       enums.LedgerTxnType `gorm:"column:txn_type;type:ledger_txn_type_enum;not null"`
	ReferenceID   string              `gorm:"column:reference_id;not null"`
	Debit         decimal.Decimal     `gorm:"column:debit;type:numeric(14,2);not null;default:0"`
	Credit        decimal.Decimal     `gorm:"column:credit;type:numeric(14,2);not null;default:0"`
	BalanceAfter  decimal.Decimal     `gorm:"column:balance_after;type:numeric(14,2);not null"`
	DueDate       *time.Time          `gorm:"column:due_date"`
	PaymentDate   *time.Time          `gorm:"column:payment_date"`
	Notes         *string             `gorm:"column:notes"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// CreditHold blocks the credit reservation for an order exceeding available
// limit. An unreleased hold is synonymous with Order.CreditHoldFlag.
type CreditHold struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DistributorID uuid.UUID  `gorm:"column:distributor_id;type:uuid;not null;index"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	Reason        string     `gorm:"column:reason;not null"`
	ReleasedAt    *time.Time `gorm:"column:released_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}
