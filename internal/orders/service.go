package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/internal/audit"
	"github.com/varunnair-io/distriflow-backend/internal/credit"
	"github.com/varunnair-io/distriflow-backend/internal/notify"
	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/pagination"
)

// invoiceTermDays is the payment term applied to invoices raised at dispatch.
const invoiceTermDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.IntegrationEventType, payload any) error
	Kick(ctx context.Context)
}

// creditEngine is the slice of the credit service the order lifecycle drives.
type creditEngine interface {
	EvaluateAndReserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) (bool, error)
	PlaceHold(ctx context.Context, tx *gorm.DB, distributorID, orderID uuid.UUID, reason string) error
	ReleaseHold(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.CreditHold, error)
	Reserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error
	ReleaseReservation(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error
	RecordInvoice(ctx context.Context, tx *gorm.DB, input credit.RecordInvoiceInput) (*models.CreditLedgerEntry, error)
	RecordAdjustment(ctx context.Context, tx *gorm.DB, input credit.RecordAdjustmentInput) (*models.CreditLedgerEntry, error)
}

// Service manages the order lifecycle and its credit side effects.
type Service interface {
	Create(ctx context.Context, actor scope.Actor, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor scope.Actor, input ListInput) ([]models.Order, string, error)
	Transition(ctx context.Context, actor scope.Actor, id uuid.UUID, target enums.OrderStatus, comment *string) (*models.Order, error)
	CreateReturn(ctx context.Context, actor scope.Actor, input CreateReturnInput) (*models.OrderReturn, error)
	ReleaseCreditHold(ctx context.Context, actor scope.Actor, orderID uuid.UUID) (*models.Order, error)
}

// CreateOrderInput is the request to place a new order.
type CreateOrderInput struct {
	DistributorID *uuid.UUID
	RetailerID    *uuid.UUID
	SalesRepID    *uuid.UUID
	Currency      string
	Items         []CreateOrderItemInput
}

// CreateOrderItemInput is one requested order line.
type CreateOrderItemInput struct {
	ProductID      uuid.UUID
	Quantity       int
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	SchemeID       *uuid.UUID
}

// ListInput narrows the order listing for one distributor scope.
type ListInput struct {
	DistributorID *uuid.UUID
	Status        *enums.OrderStatus
	Pagination    pagination.Params
}

// CreateReturnInput raises a return against a delivered order.
type CreateReturnInput struct {
	OrderID      uuid.UUID
	Reason       string
	RefundAmount decimal.Decimal
}

// OrderStatusEvent is the payload delivered for order lifecycle events.
type OrderStatusEvent struct {
	OrderID        uuid.UUID          `json:"order_id"`
	DistributorID  uuid.UUID          `json:"distributor_id"`
	Status         enums.OrderStatus  `json:"status"`
	PreviousStatus *enums.OrderStatus `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	CreditHold     bool               `json:"credit_hold"`
}

// OrderReturnedEvent is the payload delivered to order.returned subscribers.
type OrderReturnedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	DistributorID uuid.UUID       `json:"distributor_id"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	Reason        string          `json:"reason"`
}

type service struct {
	repo     Repository
	tx       txRunner
	crediter creditEngine
	outbox   outboxPublisher
	auditor  audit.Recorder
	notifier notify.Sender
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the order service with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	crediter creditEngine,
	outbox outboxPublisher,
	auditor audit.Recorder,
	notifier notify.Sender,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if crediter == nil {
		return nil, fmt.Errorf("credit engine required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if auditor == nil {
		auditor = audit.Nop()
	}
	if notifier == nil {
		notifier = notify.Nop()
	}
	return &service{
		repo:     repo,
		tx:       tx,
		crediter: crediter,
		outbox:   outbox,
		auditor:  auditor,
		notifier: notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Create places a new order in submitted status. Credit is evaluated in the
// same transaction: when available limit covers the total the reservation is
// applied immediately, otherwise the order is flagged and a hold is placed.
func (s *service) Create(ctx context.Context, actor scope.Actor, input CreateOrderInput) (*models.Order, error) {
	distributorID, err := scope.ResolveDistributor(actor, input.DistributorID)
	if err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	items := make([]models.OrderItem, 0, len(input.Items))
	total := decimal.Zero
	for i, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: unit price cannot be negative", i))
		}
		if item.DiscountAmount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: discount cannot be negative", i))
		}
		row := models.OrderItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			SchemeID:       item.SchemeID,
		}
		line := row.LineTotal()
		if line.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: discount exceeds line amount", i))
		}
		total = total.Add(line)
		items = append(items, row)
	}
	if !total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		held, err := s.crediter.EvaluateAndReserve(ctx, tx, distributorID, total)
		if err != nil {
			return err
		}

		order = &models.Order{
			DistributorID:  distributorID,
			RetailerID:     input.RetailerID,
			SalesRepID:     input.SalesRepID,
			Status:         enums.OrderStatusSubmitted,
			TotalAmount:    total,
			Currency:       currency,
			CreditHoldFlag: held,
			Items:          items,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if held {
			if err := s.crediter.PlaceHold(ctx, tx, distributorID, order.ID, "credit limit exceeded"); err != nil {
				return err
			}
		}

		return s.outbox.Enqueue(ctx, tx, enums.EventOrderCreated, OrderStatusEvent{
			OrderID:       order.ID,
			DistributorID: distributorID,
			Status:        order.Status,
			TotalAmount:   total,
			CreditHold:    held,
		})
	})
	if err != nil {
		return nil, err
	}
	s.outbox.Kick(ctx)

	s.auditor.Record(ctx, audit.Entry{
		Action:   "order.create",
		Resource: order.ID.String(),
		UserID:   &actor.UserID,
		Metadata: map[string]any{
			"distributor_id": distributorID.String(),
			"total_amount":   total.String(),
			"credit_hold":    order.CreditHoldFlag,
		},
	})
	if order.CreditHoldFlag {
		s.notifier.HoldPlaced(ctx, notify.HoldNotice{
			DistributorID: distributorID,
			OrderID:       order.ID,
			Amount:        total,
			Reason:        "credit limit exceeded",
		})
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := s.authorize(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor scope.Actor, input ListInput) ([]models.Order, string, error) {
	distributorID, err := scope.ResolveDistributor(actor, input.DistributorID)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.repo.List(ctx, ListFilter{
		DistributorID: distributorID,
		Status:        input.Status,
		Pagination:    input.Pagination,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	limit := pagination.NormalizeLimit(input.Pagination.Limit)
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// Transition moves the order through the lifecycle state machine. A target
// equal to the current status is a no-op. Moving to dispatched raises the
// invoice; returned is reachable only through the returns flow.
func (s *service) Transition(ctx context.Context, actor scope.Actor, id uuid.UUID, target enums.OrderStatus, comment *string) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	var order *models.Order
	var noop bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := s.authorize(actor, order); err != nil {
			return err
		}
		if order.Status == target {
			noop = true
			return nil
		}
		if target == enums.OrderStatusReturned {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "returns must be raised through the returns endpoint")
		}
		if !order.Status.CanTransitionTo(target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot transition order from %s to %s", order.Status, target))
		}
		if order.CreditHoldFlag && target != enums.OrderStatusCancelled && target != enums.OrderStatusRejected {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is on credit hold")
		}

		if err := s.applyTransitionEffects(ctx, tx, order, target); err != nil {
			return err
		}

		updates := map[string]any{"status": target}
		if comment != nil {
			updates["status_comment"] = *comment
		}
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = target
		order.StatusComment = comment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return order, nil
	}
	// Dispatched and delivered are the only targets that enqueue an event.
	if target == enums.OrderStatusDispatched || target == enums.OrderStatusDelivered {
		s.outbox.Kick(ctx)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "order.transition",
		Resource: order.ID.String(),
		UserID:   &actor.UserID,
		Metadata: map[string]any{"to": string(target)},
	})
	return order, nil
}

func (s *service) applyTransitionEffects(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus) error {
	switch target {
	case enums.OrderStatusDispatched:
		due := s.now().AddDate(0, 0, invoiceTermDays)
		if _, err := s.crediter.RecordInvoice(ctx, tx, credit.RecordInvoiceInput{
			DistributorID: order.DistributorID,
			Amount:        order.TotalAmount,
			ReferenceID:   order.ID.String(),
			DueDate:       &due,
		}); err != nil {
			return err
		}
		return s.enqueueStatusEvent(ctx, tx, enums.EventOrderShipped, order, target)

	case enums.OrderStatusDelivered:
		return s.enqueueStatusEvent(ctx, tx, enums.EventOrderDelivered, order, target)

	case enums.OrderStatusCancelled, enums.OrderStatusRejected:
		return s.unwindCredit(ctx, tx, order)
	}
	return nil
}

// unwindCredit reverses the creation-time credit effect when the order exits
// before delivery. A held order never reserved credit, so only its hold needs
// releasing.
func (s *service) unwindCredit(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.CreditHoldFlag {
		if _, err := s.crediter.ReleaseHold(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{"credit_hold_flag": false})
	}
	return s.crediter.ReleaseReservation(ctx, tx, order.DistributorID, order.TotalAmount)
}

func (s *service) enqueueStatusEvent(ctx context.Context, tx *gorm.DB, eventType enums.IntegrationEventType, order *models.Order, target enums.OrderStatus) error {
	previous := order.Status
	return s.outbox.Enqueue(ctx, tx, eventType, OrderStatusEvent{
		OrderID:        order.ID,
		DistributorID:  order.DistributorID,
		Status:         target,
		PreviousStatus: &previous,
		TotalAmount:    order.TotalAmount,
		CreditHold:     order.CreditHoldFlag,
	})
}

// CreateReturn transitions a delivered order to returned, records the return
// and credits the refund back to the ledger.
func (s *service) CreateReturn(ctx context.Context, actor scope.Actor, input CreateReturnInput) (*models.OrderReturn, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason required")
	}
	if input.RefundAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount cannot be negative")
	}

	var ret *models.OrderReturn
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := s.authorize(actor, order); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned")
		}
		if input.RefundAmount.GreaterThan(order.TotalAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds order total")
		}

		ret = &models.OrderReturn{
			OrderID:      order.ID,
			Reason:       input.Reason,
			RefundAmount: input.RefundAmount,
		}
		if err := s.repo.WithTx(tx).CreateReturn(ctx, ret); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return")
		}
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusReturned,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		if input.RefundAmount.IsPositive() {
			if _, err := s.crediter.RecordAdjustment(ctx, tx, credit.RecordAdjustmentInput{
				DistributorID: order.DistributorID,
				Amount:        input.RefundAmount,
				ReferenceID:   ret.ID.String(),
			}); err != nil {
				return err
			}
		}

		return s.outbox.Enqueue(ctx, tx, enums.EventOrderReturned, OrderReturnedEvent{
			OrderID:       order.ID,
			DistributorID: order.DistributorID,
			RefundAmount:  input.RefundAmount,
			Reason:        input.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.outbox.Kick(ctx)

	s.auditor.Record(ctx, audit.Entry{
		Action:   "order.return",
		Resource: input.OrderID.String(),
		UserID:   &actor.UserID,
		Metadata: map[string]any{"refund_amount": input.RefundAmount.String()},
	})
	return ret, nil
}

// ReleaseCreditHold lifts the hold on an order and applies the reservation
// that was deferred at creation. Admin only; releasing twice fails because
// the active hold row is gone after the first call.
func (s *service) ReleaseCreditHold(ctx context.Context, actor scope.Actor, orderID uuid.UUID) (*models.Order, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !order.CreditHoldFlag {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no active credit hold for order")
		}

		if _, err := s.crediter.ReleaseHold(ctx, tx, order.ID); err != nil {
			return err
		}
		if err := s.crediter.Reserve(ctx, tx, order.DistributorID, order.TotalAmount); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"credit_hold_flag": false,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear credit hold flag")
		}
		order.CreditHoldFlag = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "order.release_hold",
		Resource: order.ID.String(),
		UserID:   &actor.UserID,
		Metadata: map[string]any{"distributor_id": order.DistributorID.String()},
	})
	s.notifier.HoldReleased(ctx, notify.HoldNotice{
		DistributorID: order.DistributorID,
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
	})
	return order, nil
}

// authorize checks the actor may act on this order's distributor scope.
func (s *service) authorize(actor scope.Actor, order *models.Order) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role.IsAdmin() {
		return nil
	}
	if actor.DistributorID == nil || *actor.DistributorID != order.DistributorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another distributor")
	}
	return nil
}
