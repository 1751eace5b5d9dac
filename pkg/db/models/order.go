package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

// Order is the purchase aggregate placed against a distributor's credit line.
// TotalAmount is derived once at creation and never changes; rows are never
// physically deleted.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DistributorID  uuid.UUID         `gorm:"column:distributor_id;type:uuid;not null;index"`
	RetailerID     *uuid.UUID        `gorm:"column:retailer_id;type:uuid"`
	SalesRepID     *uuid.UUID        `gorm:"column:sales_rep_id;type:uuid"`
	Status         enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null"`
	TotalAmount    decimal.Decimal   `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Currency       string            `gorm:"column:currency;not null;default:INR"`
	CreditHoldFlag bool              `gorm:"column:credit_hold_flag;not null;default:false"`
	StatusComment  *string           `gorm:"column:status_comment"`
	Items          []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is one line of an order; amounts are fixed at creation.
type OrderItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(14,2);not null;default:0"`
	SchemeID       *uuid.UUID      `gorm:"column:scheme_id;type:uuid"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// LineTotal returns quantity*unitPrice - discount for this item.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.DiscountAmount)
}

// OrderReturn records a return raised against a delivered order.
type OrderReturn struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Reason       string          `gorm:"column:reason;not null"`
	RefundAmount decimal.Decimal `gorm:"column:refund_amount;type:numeric(14,2);not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
