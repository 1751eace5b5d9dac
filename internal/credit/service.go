package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.IntegrationEventType, payload any) error
	Kick(ctx context.Context)
}

// Service exposes the credit ledger, plus the tx-scoped hold-engine
// primitives the order lifecycle drives.
type Service interface {
	RecordPayment(ctx context.Context, actor scope.Actor, input RecordPaymentInput) (*models.CreditLedgerEntry, error)
	UpdateLimit(ctx context.Context, actor scope.Actor, distributorID uuid.UUID, newLimit decimal.Decimal) error
	GetAging(ctx context.Context, actor scope.Actor, requested *uuid.UUID) (*Aging, error)
	GetSummary(ctx context.Context, actor scope.Actor, requested *uuid.UUID) (*Summary, error)

	// Hold-engine primitives. Each runs inside the caller's transaction so
	// balance mutation, hold writes and order writes commit atomically.
	EvaluateAndReserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) (held bool, err error)
	PlaceHold(ctx context.Context, tx *gorm.DB, distributorID, orderID uuid.UUID, reason string) error
	ReleaseHold(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.CreditHold, error)
	Reserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error
	ReleaseReservation(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error
	RecordInvoice(ctx context.Context, tx *gorm.DB, input RecordInvoiceInput) (*models.CreditLedgerEntry, error)
	RecordAdjustment(ctx context.Context, tx *gorm.DB, input RecordAdjustmentInput) (*models.CreditLedgerEntry, error)
}

// RecordPaymentInput captures a collected payment receipt. PaymentDate records
// when the receipt was collected in the field; the entry keeps its insertion
// timestamp so the balance chain stays in append order.
type RecordPaymentInput struct {
	DistributorID *uuid.UUID
	Amount        decimal.Decimal
	ReceiptRef    string
	PaymentDate   *time.Time
	Notes         *string
}

// RecordInvoiceInput captures an invoice debit raised against a distributor.
type RecordInvoiceInput struct {
	DistributorID uuid.UUID
	Amount        decimal.Decimal
	ReferenceID   string
	DueDate       *time.Time
	Notes         *string
}

// RecordAdjustmentInput captures a credit adjustment, typically a return
// refund, that reduces what the distributor owes.
type RecordAdjustmentInput struct {
	DistributorID uuid.UUID
	Amount        decimal.Decimal
	ReferenceID   string
	Notes         *string
}

// Aging buckets outstanding invoice debits by days past due.
type Aging struct {
	Current    decimal.Decimal `json:"current"`
	Days1To30  decimal.Decimal `json:"days_1_30"`
	Days31To60 decimal.Decimal `json:"days_31_60"`
	Days61To90 decimal.Decimal `json:"days_61_90"`
	Days90Plus decimal.Decimal `json:"days_90_plus"`
}

// Summary is the credit position snapshot for one distributor.
type Summary struct {
	CreditLimit *decimal.Decimal `json:"credit_limit"`
	Outstanding decimal.Decimal  `json:"outstanding"`
	Holds       int64            `json:"holds"`
	Utilization decimal.Decimal  `json:"utilization"`
}

// PaymentCollectedEvent is the payload delivered to payment.collected subscribers.
type PaymentCollectedEvent struct {
	DistributorID uuid.UUID       `json:"distributor_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceID   string          `json:"reference_id"`
	LedgerID      uuid.UUID       `json:"ledger_id"`
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService wires the credit service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credit repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, now: time.Now}, nil
}

func (s *service) RecordPayment(ctx context.Context, actor scope.Actor, input RecordPaymentInput) (*models.CreditLedgerEntry, error) {
	distributorID, err := scope.ResolveDistributor(actor, input.DistributorID)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if input.ReceiptRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt reference required")
	}

	var entry *models.CreditLedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		distributor, err := repo.FindDistributorForUpdate(ctx, distributorID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "distributor not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
		}

		prior, err := s.priorBalance(ctx, repo, distributor)
		if err != nil {
			return err
		}

		entry = &models.CreditLedgerEntry{
			DistributorID: distributorID,
			TxnType:       enums.LedgerTxnPayment,
			ReferenceID:   input.ReceiptRef,
			Credit:        input.Amount,
			BalanceAfter:  prior.Sub(input.Amount),
			PaymentDate:   input.PaymentDate,
			Notes:         input.Notes,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment entry")
		}

		newOutstanding := distributor.OutstandingBalance.Sub(input.Amount)
		if err := repo.UpdateDistributor(ctx, distributorID, map[string]any{
			"outstanding_balance": newOutstanding,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update outstanding balance")
		}

		return s.outbox.Enqueue(ctx, tx, enums.EventPaymentCollected, PaymentCollectedEvent{
			DistributorID: distributorID,
			Amount:        input.Amount,
			ReferenceID:   input.ReceiptRef,
			LedgerID:      entry.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.outbox.Kick(ctx)
	return entry, nil
}

func (s *service) RecordInvoice(ctx context.Context, tx *gorm.DB, input RecordInvoiceInput) (*models.CreditLedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	distributor, err := repo.FindDistributor(ctx, input.DistributorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}
	prior, err := s.priorBalance(ctx, repo, distributor)
	if err != nil {
		return nil, err
	}

	entry := &models.CreditLedgerEntry{
		DistributorID: input.DistributorID,
		TxnType:       enums.LedgerTxnInvoice,
		ReferenceID:   input.ReferenceID,
		Debit:         input.Amount,
		BalanceAfter:  prior.Add(input.Amount),
		DueDate:       input.DueDate,
		Notes:         input.Notes,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append invoice entry")
	}
	return entry, nil
}

// priorBalance reads the snapshot the next balance_after derives from: the
// most recent ledger entry, falling back to the balance column when the
// ledger is empty.
func (s *service) priorBalance(ctx context.Context, repo Repository, distributor *models.Distributor) (decimal.Decimal, error) {
	latest, err := repo.LatestEntry(ctx, distributor.ID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read latest ledger entry")
	}
	if latest == nil {
		return distributor.OutstandingBalance, nil
	}
	return latest.BalanceAfter, nil
}

func (s *service) UpdateLimit(ctx context.Context, actor scope.Actor, distributorID uuid.UUID, newLimit decimal.Decimal) error {
	if err := scope.RequireAdmin(actor); err != nil {
		return err
	}
	if distributorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "distributor id required")
	}
	if !newLimit.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit limit must be positive")
	}

	if _, err := s.repo.FindDistributor(ctx, distributorID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "distributor not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}

	// Direct field update, no ledger entry.
	if err := s.repo.UpdateDistributor(ctx, distributorID, map[string]any{
		"credit_limit": newLimit,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update credit limit")
	}
	return nil
}

func (s *service) GetAging(ctx context.Context, actor scope.Actor, requested *uuid.UUID) (*Aging, error) {
	distributorID, err := scope.ResolveDistributor(actor, requested)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListInvoiceDebits(ctx, distributorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoice debits")
	}

	aging := &Aging{
		Current:    decimal.Zero,
		Days1To30:  decimal.Zero,
		Days31To60: decimal.Zero,
		Days61To90: decimal.Zero,
		Days90Plus: decimal.Zero,
	}
	today := s.now().Truncate(24 * time.Hour)
	for _, entry := range entries {
		if entry.DueDate == nil || !entry.DueDate.Before(today) {
			aging.Current = aging.Current.Add(entry.Debit)
			continue
		}
		overdue := int(today.Sub(entry.DueDate.Truncate(24*time.Hour)).Hours() / 24)
		switch {
		case overdue <= 30:
			aging.Days1To30 = aging.Days1To30.Add(entry.Debit)
		case overdue <= 60:
			aging.Days31To60 = aging.Days31To60.Add(entry.Debit)
		case overdue <= 90:
			aging.Days61To90 = aging.Days61To90.Add(entry.Debit)
		default:
			aging.Days90Plus = aging.Days90Plus.Add(entry.Debit)
		}
	}
	return aging, nil
}

func (s *service) GetSummary(ctx context.Context, actor scope.Actor, requested *uuid.UUID) (*Summary, error) {
	distributorID, err := scope.ResolveDistributor(actor, requested)
	if err != nil {
		return nil, err
	}

	distributor, err := s.repo.FindDistributor(ctx, distributorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "distributor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}

	holds, err := s.repo.CountActiveHolds(ctx, distributorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active holds")
	}

	summary := &Summary{
		Outstanding: distributor.OutstandingBalance,
		Holds:       holds,
		Utilization: decimal.Zero,
	}
	if distributor.CreditLimit.Valid {
		limit := distributor.CreditLimit.Decimal
		summary.CreditLimit = &limit
		if limit.IsPositive() {
			summary.Utilization = distributor.OutstandingBalance.DivRound(limit, 4)
		}
	}
	return summary, nil
}

// EvaluateAndReserve decides the hold outcome for a new order. When credit
// suffices it applies the optimistic reservation (balance column only, no
// ledger entry at this stage) and returns held=false; otherwise it mutates
// nothing and returns held=true. A distributor with no configured limit is
// never held.
func (s *service) EvaluateAndReserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	distributor, err := repo.FindDistributorForUpdate(ctx, distributorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "distributor not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}

	if distributor.CreditLimit.Valid {
		available := distributor.CreditLimit.Decimal.Sub(distributor.OutstandingBalance)
		if amount.GreaterThan(available) {
			return true, nil
		}
	}

	if err := repo.UpdateDistributor(ctx, distributorID, map[string]any{
		"outstanding_balance": distributor.OutstandingBalance.Add(amount),
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve credit")
	}
	return false, nil
}

// Reserve applies the deferred reservation skipped when an order was held.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	distributor, err := repo.FindDistributorForUpdate(ctx, distributorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}
	if err := repo.UpdateDistributor(ctx, distributorID, map[string]any{
		"outstanding_balance": distributor.OutstandingBalance.Add(amount),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve credit")
	}
	return nil
}

// ReleaseReservation returns previously reserved credit when an order leaves
// the lifecycle without being delivered.
func (s *service) ReleaseReservation(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	distributor, err := repo.FindDistributorForUpdate(ctx, distributorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}
	if err := repo.UpdateDistributor(ctx, distributorID, map[string]any{
		"outstanding_balance": distributor.OutstandingBalance.Sub(amount),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
	}
	return nil
}

func (s *service) RecordAdjustment(ctx context.Context, tx *gorm.DB, input RecordAdjustmentInput) (*models.CreditLedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	distributor, err := repo.FindDistributorForUpdate(ctx, input.DistributorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor")
	}
	prior, err := s.priorBalance(ctx, repo, distributor)
	if err != nil {
		return nil, err
	}

	entry := &models.CreditLedgerEntry{
		DistributorID: input.DistributorID,
		TxnType:       enums.LedgerTxnAdjustment,
		ReferenceID:   input.ReferenceID,
		Credit:        input.Amount,
		BalanceAfter:  prior.Sub(input.Amount),
		Notes:         input.Notes,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append adjustment entry")
	}
	if err := repo.UpdateDistributor(ctx, input.DistributorID, map[string]any{
		"outstanding_balance": distributor.OutstandingBalance.Sub(input.Amount),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update outstanding balance")
	}
	return entry, nil
}

func (s *service) PlaceHold(ctx context.Context, tx *gorm.DB, distributorID, orderID uuid.UUID, reason string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	hold := &models.CreditHold{
		DistributorID: distributorID,
		OrderID:       orderID,
		Reason:        reason,
	}
	if err := s.repo.WithTx(tx).CreateHold(ctx, hold); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "place credit hold")
	}
	return nil
}

func (s *service) ReleaseHold(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.CreditHold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	hold, err := repo.FindActiveHoldByOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active credit hold for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit hold")
	}
	if err := repo.ReleaseHold(ctx, hold.ID, s.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release credit hold")
	}
	return hold, nil
}
