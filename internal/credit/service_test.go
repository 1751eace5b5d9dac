package credit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
)

type fakeRepo struct {
	distributor *models.Distributor
	latest      *models.CreditLedgerEntry
	invoices    []models.CreditLedgerEntry
	activeHold  *models.CreditHold
	holdCount   int64

	createdEntries []models.CreditLedgerEntry
	updates        []map[string]any
	createdHolds   []models.CreditHold
	releasedHolds  []uuid.UUID
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) FindDistributor(ctx context.Context, id uuid.UUID) (*models.Distributor, error) {
	if f.distributor == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.distributor, nil
}

func (f *fakeRepo) FindDistributorForUpdate(ctx context.Context, id uuid.UUID) (*models.Distributor, error) {
	return f.FindDistributor(ctx, id)
}

func (f *fakeRepo) UpdateDistributor(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeRepo) LatestEntry(ctx context.Context, distributorID uuid.UUID) (*models.CreditLedgerEntry, error) {
	return f.latest, nil
}

func (f *fakeRepo) CreateEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	f.createdEntries = append(f.createdEntries, *entry)
	return nil
}

func (f *fakeRepo) ListInvoiceDebits(ctx context.Context, distributorID uuid.UUID) ([]models.CreditLedgerEntry, error) {
	return f.invoices, nil
}

func (f *fakeRepo) CreateHold(ctx context.Context, hold *models.CreditHold) error {
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	f.createdHolds = append(f.createdHolds, *hold)
	return nil
}

func (f *fakeRepo) FindActiveHoldByOrder(ctx context.Context, orderID uuid.UUID) (*models.CreditHold, error) {
	if f.activeHold == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.activeHold, nil
}

func (f *fakeRepo) ReleaseHold(ctx context.Context, holdID uuid.UUID, releasedAt time.Time) error {
	f.releasedHolds = append(f.releasedHolds, holdID)
	return nil
}

func (f *fakeRepo) CountActiveHolds(ctx context.Context, distributorID uuid.UUID) (int64, error) {
	return f.holdCount, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type enqueuedEvent struct {
	eventType enums.IntegrationEventType
	payload   any
}

type fakeOutbox struct {
	events []enqueuedEvent
	kicks  int
}

func (f *fakeOutbox) Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.IntegrationEventType, payload any) error {
	f.events = append(f.events, enqueuedEvent{eventType: eventType, payload: payload})
	return nil
}

func (f *fakeOutbox) Kick(ctx context.Context) {
	f.kicks++
}

func newTestService(t *testing.T, repo *fakeRepo) (*service, *fakeOutbox) {
	t.Helper()
	outbox := &fakeOutbox{}
	svc, err := NewService(repo, fakeTxRunner{}, outbox)
	require.NoError(t, err)
	return svc.(*service), outbox
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func limitOf(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func adminActor() scope.Actor {
	return scope.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func distributorActor(distributorID uuid.UUID) scope.Actor {
	return scope.Actor{UserID: uuid.New(), Role: enums.RoleDistributor, DistributorID: &distributorID}
}

func TestRecordPayment_AppendsEntryAndDecrementsBalance(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			CreditLimit:        limitOf("1000"),
			OutstandingBalance: dec("950"),
		},
		latest: &models.CreditLedgerEntry{BalanceAfter: dec("950")},
	}
	svc, outbox := newTestService(t, repo)

	entry, err := svc.RecordPayment(context.Background(), distributorActor(distributorID), RecordPaymentInput{
		Amount:     dec("300"),
		ReceiptRef: "RCPT-001",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.LedgerTxnPayment, entry.TxnType)
	assert.True(t, entry.Credit.Equal(dec("300")))
	assert.True(t, entry.Debit.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(dec("650")))

	require.Len(t, repo.updates, 1)
	newBalance := repo.updates[0]["outstanding_balance"].(decimal.Decimal)
	assert.True(t, newBalance.Equal(dec("650")))

	require.Len(t, outbox.events, 1)
	assert.Equal(t, enums.EventPaymentCollected, outbox.events[0].eventType)
	payload := outbox.events[0].payload.(PaymentCollectedEvent)
	assert.Equal(t, "RCPT-001", payload.ReferenceID)
	assert.Equal(t, entry.ID, payload.LedgerID)
	assert.Equal(t, 1, outbox.kicks)
}

func TestRecordPayment_BackdatedKeepsBalanceChain(t *testing.T) {
	distributorID := uuid.New()
	collected := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			CreditLimit:        limitOf("1000"),
			OutstandingBalance: dec("950"),
		},
		latest: &models.CreditLedgerEntry{BalanceAfter: dec("950")},
	}
	svc, _ := newTestService(t, repo)

	entry, err := svc.RecordPayment(context.Background(), distributorActor(distributorID), RecordPaymentInput{
		Amount:      dec("300"),
		ReceiptRef:  "RCPT-004",
		PaymentDate: &collected,
	})
	require.NoError(t, err)

	require.NotNil(t, entry.PaymentDate)
	assert.True(t, entry.PaymentDate.Equal(collected))
	// The insertion timestamp stays database-assigned so LatestEntry keeps
	// returning entries in append order.
	assert.True(t, entry.CreatedAt.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(dec("650")))

	// The next append snapshots from the payment, not from whatever entry the
	// receipt date falls behind.
	repo.latest = entry
	invoice, err := svc.RecordInvoice(context.Background(), &gorm.DB{}, RecordInvoiceInput{
		DistributorID: distributorID,
		Amount:        dec("100"),
		ReferenceID:   "INV-2",
	})
	require.NoError(t, err)
	assert.True(t, invoice.BalanceAfter.Equal(dec("750")))
}

func TestRecordPayment_EmptyLedgerFallsBackToBalanceColumn(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			OutstandingBalance: dec("200"),
		},
	}
	svc, _ := newTestService(t, repo)

	entry, err := svc.RecordPayment(context.Background(), distributorActor(distributorID), RecordPaymentInput{
		Amount:     dec("50"),
		ReceiptRef: "RCPT-002",
	})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(dec("150")))
}

func TestRecordPayment_RejectsBadInput(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{distributor: &models.Distributor{ID: distributorID}}
	svc, _ := newTestService(t, repo)
	actor := distributorActor(distributorID)

	_, err := svc.RecordPayment(context.Background(), actor, RecordPaymentInput{
		Amount:     dec("0"),
		ReceiptRef: "RCPT-003",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.RecordPayment(context.Background(), actor, RecordPaymentInput{
		Amount: dec("10"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEvaluateAndReserve_SufficientCreditReserves(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			CreditLimit:        limitOf("1000"),
			OutstandingBalance: dec("800"),
		},
	}
	svc, _ := newTestService(t, repo)

	held, err := svc.EvaluateAndReserve(context.Background(), &gorm.DB{}, distributorID, dec("150"))
	require.NoError(t, err)
	assert.False(t, held)

	require.Len(t, repo.updates, 1)
	newBalance := repo.updates[0]["outstanding_balance"].(decimal.Decimal)
	assert.True(t, newBalance.Equal(dec("950")))
}

func TestEvaluateAndReserve_InsufficientCreditHoldsWithoutMutation(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			CreditLimit:        limitOf("1000"),
			OutstandingBalance: dec("950"),
		},
	}
	svc, _ := newTestService(t, repo)

	held, err := svc.EvaluateAndReserve(context.Background(), &gorm.DB{}, distributorID, dec("100"))
	require.NoError(t, err)
	assert.True(t, held)
	assert.Empty(t, repo.updates)
}

func TestEvaluateAndReserve_NoLimitNeverHolds(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			OutstandingBalance: dec("999999"),
		},
	}
	svc, _ := newTestService(t, repo)

	held, err := svc.EvaluateAndReserve(context.Background(), &gorm.DB{}, distributorID, dec("500"))
	require.NoError(t, err)
	assert.False(t, held)
	require.Len(t, repo.updates, 1)
}

func TestUpdateLimit_AdminOnly(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{distributor: &models.Distributor{ID: distributorID}}
	svc, _ := newTestService(t, repo)

	err := svc.UpdateLimit(context.Background(), distributorActor(distributorID), distributorID, dec("5000"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = svc.UpdateLimit(context.Background(), adminActor(), distributorID, dec("-1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.UpdateLimit(context.Background(), adminActor(), distributorID, dec("5000"))
	require.NoError(t, err)
	require.Len(t, repo.updates, 1)
	limit := repo.updates[0]["credit_limit"].(decimal.Decimal)
	assert.True(t, limit.Equal(dec("5000")))
}

func TestGetAging_BucketsByDaysPastDue(t *testing.T) {
	distributorID := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	due := func(daysAgo int) *time.Time {
		d := now.AddDate(0, 0, -daysAgo)
		return &d
	}
	repo := &fakeRepo{
		distributor: &models.Distributor{ID: distributorID},
		invoices: []models.CreditLedgerEntry{
			{Debit: dec("100"), DueDate: due(-5)},
			{Debit: dec("200"), DueDate: due(10)},
			{Debit: dec("300"), DueDate: due(45)},
			{Debit: dec("400"), DueDate: due(75)},
			{Debit: dec("500"), DueDate: due(120)},
			{Debit: dec("50")},
		},
	}
	svc, _ := newTestService(t, repo)
	svc.now = func() time.Time { return now }

	aging, err := svc.GetAging(context.Background(), distributorActor(distributorID), nil)
	require.NoError(t, err)
	assert.True(t, aging.Current.Equal(dec("150")))
	assert.True(t, aging.Days1To30.Equal(dec("200")))
	assert.True(t, aging.Days31To60.Equal(dec("300")))
	assert.True(t, aging.Days61To90.Equal(dec("400")))
	assert.True(t, aging.Days90Plus.Equal(dec("500")))
}

func TestGetSummary_ComputesUtilization(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			CreditLimit:        limitOf("1000"),
			OutstandingBalance: dec("250"),
		},
		holdCount: 2,
	}
	svc, _ := newTestService(t, repo)

	summary, err := svc.GetSummary(context.Background(), distributorActor(distributorID), nil)
	require.NoError(t, err)
	require.NotNil(t, summary.CreditLimit)
	assert.True(t, summary.CreditLimit.Equal(dec("1000")))
	assert.True(t, summary.Outstanding.Equal(dec("250")))
	assert.Equal(t, int64(2), summary.Holds)
	assert.True(t, summary.Utilization.Equal(dec("0.25")))
}

func TestGetSummary_NoLimitReportsZeroUtilization(t *testing.T) {
	distributorID := uuid.New()
	repo := &fakeRepo{
		distributor: &models.Distributor{
			ID:                 distributorID,
			OutstandingBalance: dec("250"),
		},
	}
	svc, _ := newTestService(t, repo)

	summary, err := svc.GetSummary(context.Background(), distributorActor(distributorID), nil)
	require.NoError(t, err)
	assert.Nil(t, summary.CreditLimit)
	assert.True(t, summary.Utilization.IsZero())
}

func TestReleaseHold_MarksHoldReleased(t *testing.T) {
	holdID := uuid.New()
	orderID := uuid.New()
	repo := &fakeRepo{
		activeHold: &models.CreditHold{ID: holdID, OrderID: orderID, Reason: "credit limit exceeded"},
	}
	svc, _ := newTestService(t, repo)

	hold, err := svc.ReleaseHold(context.Background(), &gorm.DB{}, orderID)
	require.NoError(t, err)
	assert.Equal(t, holdID, hold.ID)
	assert.Equal(t, []uuid.UUID{holdID}, repo.releasedHolds)
}

func TestReleaseHold_NoActiveHold(t *testing.T) {
	repo := &fakeRepo{}
	svc, _ := newTestService(t, repo)

	_, err := svc.ReleaseHold(context.Background(), &gorm.DB{}, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
