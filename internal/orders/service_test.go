package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/internal/audit"
	"github.com/varunnair-io/distriflow-backend/internal/credit"
	"github.com/varunnair-io/distriflow-backend/internal/notify"
	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
)

type fakeOrderRepo struct {
	orders map[uuid.UUID]*models.Order

	created  []*models.Order
	updates  map[uuid.UUID][]map[string]any
	returns  []*models.OrderReturn
	listRows []models.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  map[uuid.UUID]*models.Order{},
		updates: map[uuid.UUID][]map[string]any{},
	}
}

func (f *fakeOrderRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.orders[order.ID] = order
	f.created = append(f.created, order)
	return nil
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeOrderRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	f.updates[id] = append(f.updates[id], updates)
	return nil
}

func (f *fakeOrderRepo) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	return f.listRows, nil
}

func (f *fakeOrderRepo) CreateReturn(ctx context.Context, ret *models.OrderReturn) error {
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	f.returns = append(f.returns, ret)
	return nil
}

type fakeCredit struct {
	holdOnEvaluate bool
	activeHold     *models.CreditHold

	reserved     []decimal.Decimal
	released     []decimal.Decimal
	holdsPlaced  []uuid.UUID
	holdReleases []uuid.UUID
	invoices     []credit.RecordInvoiceInput
	adjustments  []credit.RecordAdjustmentInput
}

func (f *fakeCredit) EvaluateAndReserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if f.holdOnEvaluate {
		return true, nil
	}
	f.reserved = append(f.reserved, amount)
	return false, nil
}

func (f *fakeCredit) PlaceHold(ctx context.Context, tx *gorm.DB, distributorID, orderID uuid.UUID, reason string) error {
	f.holdsPlaced = append(f.holdsPlaced, orderID)
	return nil
}

func (f *fakeCredit) ReleaseHold(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.CreditHold, error) {
	if f.activeHold == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active credit hold for order")
	}
	hold := f.activeHold
	f.activeHold = nil
	f.holdReleases = append(f.holdReleases, orderID)
	return hold, nil
}

func (f *fakeCredit) Reserve(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error {
	f.reserved = append(f.reserved, amount)
	return nil
}

func (f *fakeCredit) ReleaseReservation(ctx context.Context, tx *gorm.DB, distributorID uuid.UUID, amount decimal.Decimal) error {
	f.released = append(f.released, amount)
	return nil
}

func (f *fakeCredit) RecordInvoice(ctx context.Context, tx *gorm.DB, input credit.RecordInvoiceInput) (*models.CreditLedgerEntry, error) {
	f.invoices = append(f.invoices, input)
	return &models.CreditLedgerEntry{ID: uuid.New()}, nil
}

func (f *fakeCredit) RecordAdjustment(ctx context.Context, tx *gorm.DB, input credit.RecordAdjustmentInput) (*models.CreditLedgerEntry, error) {
	f.adjustments = append(f.adjustments, input)
	return &models.CreditLedgerEntry{ID: uuid.New()}, nil
}

type fakeTxRunner struct {
	inTx *bool
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if f.inTx != nil {
		*f.inTx = true
		defer func() { *f.inTx = false }()
	}
	return fn(&gorm.DB{})
}

type enqueuedEvent struct {
	eventType enums.IntegrationEventType
	payload   any
}

type fakeOutbox struct {
	events     []enqueuedEvent
	kicks      int
	kickedInTx bool
	inTx       *bool
}

func (f *fakeOutbox) Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.IntegrationEventType, payload any) error {
	f.events = append(f.events, enqueuedEvent{eventType: eventType, payload: payload})
	return nil
}

func (f *fakeOutbox) Kick(ctx context.Context) {
	f.kicks++
	if f.inTx != nil && *f.inTx {
		f.kickedInTx = true
	}
}

func newTestService(t *testing.T, repo *fakeOrderRepo, crediter *fakeCredit) (Service, *fakeOutbox) {
	t.Helper()
	inTx := false
	outbox := &fakeOutbox{inTx: &inTx}
	svc, err := NewService(repo, fakeTxRunner{inTx: &inTx}, crediter, outbox, audit.Nop(), notify.Nop(), nil)
	require.NoError(t, err)
	return svc, outbox
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func adminActor() scope.Actor {
	return scope.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func distributorActor(distributorID uuid.UUID) scope.Actor {
	return scope.Actor{UserID: uuid.New(), Role: enums.RoleDistributor, DistributorID: &distributorID}
}

func item(qty int, price, discount string) CreateOrderItemInput {
	return CreateOrderItemInput{
		ProductID:      uuid.New(),
		Quantity:       qty,
		UnitPrice:      dec(price),
		DiscountAmount: dec(discount),
	}
}

func TestCreate_DerivesTotalAndReserves(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	crediter := &fakeCredit{}
	svc, outbox := newTestService(t, repo, crediter)

	order, err := svc.Create(context.Background(), distributorActor(distributorID), CreateOrderInput{
		Items: []CreateOrderItemInput{
			item(3, "40", "10"),
			item(1, "30", "0"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusSubmitted, order.Status)
	assert.True(t, order.TotalAmount.Equal(dec("140")))
	assert.False(t, order.CreditHoldFlag)
	assert.Equal(t, "INR", order.Currency)

	require.Len(t, crediter.reserved, 1)
	assert.True(t, crediter.reserved[0].Equal(dec("140")))
	assert.Empty(t, crediter.holdsPlaced)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, enums.EventOrderCreated, outbox.events[0].eventType)
	payload := outbox.events[0].payload.(OrderStatusEvent)
	assert.False(t, payload.CreditHold)
}

func TestCreate_InsufficientCreditPlacesHold(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	crediter := &fakeCredit{holdOnEvaluate: true}
	svc, outbox := newTestService(t, repo, crediter)

	order, err := svc.Create(context.Background(), distributorActor(distributorID), CreateOrderInput{
		Items: []CreateOrderItemInput{item(1, "100", "0")},
	})
	require.NoError(t, err)

	assert.True(t, order.CreditHoldFlag)
	assert.Empty(t, crediter.reserved)
	assert.Equal(t, []uuid.UUID{order.ID}, crediter.holdsPlaced)

	payload := outbox.events[0].payload.(OrderStatusEvent)
	assert.True(t, payload.CreditHold)
}

func TestCreate_KicksDispatchAfterCommit(t *testing.T) {
	distributorID := uuid.New()
	svc, outbox := newTestService(t, newFakeOrderRepo(), &fakeCredit{})

	_, err := svc.Create(context.Background(), distributorActor(distributorID), CreateOrderInput{
		Items: []CreateOrderItemInput{item(1, "100", "0")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outbox.kicks)
	assert.False(t, outbox.kickedInTx, "dispatch kicked before the enqueuing transaction committed")
}

func TestCreate_RejectsBadInput(t *testing.T) {
	distributorID := uuid.New()
	svc, _ := newTestService(t, newFakeOrderRepo(), &fakeCredit{})
	actor := distributorActor(distributorID)

	_, err := svc.Create(context.Background(), actor, CreateOrderInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), actor, CreateOrderInput{
		Items: []CreateOrderItemInput{item(0, "10", "0")},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), actor, CreateOrderInput{
		Items: []CreateOrderItemInput{item(1, "10", "50")},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTransition_IllegalMoveConflicts(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusSubmitted,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	svc, _ := newTestService(t, repo, &fakeCredit{})

	_, err := svc.Transition(context.Background(), distributorActor(distributorID), order.ID, enums.OrderStatusDelivered, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestTransition_SameStatusIsNoop(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusSubmitted,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	svc, outbox := newTestService(t, repo, &fakeCredit{})

	got, err := svc.Transition(context.Background(), distributorActor(distributorID), order.ID, enums.OrderStatusSubmitted, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusSubmitted, got.Status)
	assert.Empty(t, outbox.events)
	assert.Zero(t, outbox.kicks)
	assert.Empty(t, repo.updates[order.ID])
}

func TestTransition_ReturnedRequiresReturnsFlow(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusDelivered,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	svc, _ := newTestService(t, repo, &fakeCredit{})

	_, err := svc.Transition(context.Background(), distributorActor(distributorID), order.ID, enums.OrderStatusReturned, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestTransition_DispatchRaisesInvoiceAndEvent(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusApproved,
		TotalAmount:   dec("250"),
	}
	repo.orders[order.ID] = order
	crediter := &fakeCredit{}
	svc, outbox := newTestService(t, repo, crediter)

	got, err := svc.Transition(context.Background(), distributorActor(distributorID), order.ID, enums.OrderStatusDispatched, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDispatched, got.Status)

	require.Len(t, crediter.invoices, 1)
	invoice := crediter.invoices[0]
	assert.True(t, invoice.Amount.Equal(dec("250")))
	assert.Equal(t, order.ID.String(), invoice.ReferenceID)
	require.NotNil(t, invoice.DueDate)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, enums.EventOrderShipped, outbox.events[0].eventType)
	payload := outbox.events[0].payload.(OrderStatusEvent)
	assert.Equal(t, enums.OrderStatusDispatched, payload.Status)
	require.NotNil(t, payload.PreviousStatus)
	assert.Equal(t, enums.OrderStatusApproved, *payload.PreviousStatus)

	assert.Equal(t, 1, outbox.kicks)
	assert.False(t, outbox.kickedInTx)
}

func TestTransition_CancelReleasesReservation(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusSubmitted,
		TotalAmount:   dec("300"),
	}
	repo.orders[order.ID] = order
	crediter := &fakeCredit{}
	svc, _ := newTestService(t, repo, crediter)

	_, err := svc.Transition(context.Background(), distributorActor(distributorID), order.ID, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	require.Len(t, crediter.released, 1)
	assert.True(t, crediter.released[0].Equal(dec("300")))
}

func TestTransition_HeldOrderCannotProgress(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:             uuid.New(),
		DistributorID:  distributorID,
		Status:         enums.OrderStatusSubmitted,
		TotalAmount:    dec("100"),
		CreditHoldFlag: true,
	}
	repo.orders[order.ID] = order
	svc, _ := newTestService(t, repo, &fakeCredit{})

	_, err := svc.Transition(context.Background(), distributorActor(distributorID), order.ID, enums.OrderStatusApproved, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestTransition_ForbiddenForOtherDistributor(t *testing.T) {
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: uuid.New(),
		Status:        enums.OrderStatusSubmitted,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	svc, _ := newTestService(t, repo, &fakeCredit{})

	_, err := svc.Transition(context.Background(), distributorActor(uuid.New()), order.ID, enums.OrderStatusApproved, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestCreateReturn_DeliveredOnly(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusDispatched,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	svc, _ := newTestService(t, repo, &fakeCredit{})

	_, err := svc.CreateReturn(context.Background(), distributorActor(distributorID), CreateReturnInput{
		OrderID:      order.ID,
		Reason:       "damaged",
		RefundAmount: dec("50"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateReturn_RecordsRefundAdjustment(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusDelivered,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	crediter := &fakeCredit{}
	svc, outbox := newTestService(t, repo, crediter)

	ret, err := svc.CreateReturn(context.Background(), distributorActor(distributorID), CreateReturnInput{
		OrderID:      order.ID,
		Reason:       "damaged",
		RefundAmount: dec("60"),
	})
	require.NoError(t, err)
	assert.True(t, ret.RefundAmount.Equal(dec("60")))

	require.Len(t, crediter.adjustments, 1)
	assert.True(t, crediter.adjustments[0].Amount.Equal(dec("60")))

	require.Len(t, outbox.events, 1)
	assert.Equal(t, enums.EventOrderReturned, outbox.events[0].eventType)
}

func TestCreateReturn_RefundCannotExceedTotal(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:            uuid.New(),
		DistributorID: distributorID,
		Status:        enums.OrderStatusDelivered,
		TotalAmount:   dec("100"),
	}
	repo.orders[order.ID] = order
	svc, _ := newTestService(t, repo, &fakeCredit{})

	_, err := svc.CreateReturn(context.Background(), distributorActor(distributorID), CreateReturnInput{
		OrderID:      order.ID,
		Reason:       "damaged",
		RefundAmount: dec("150"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReleaseCreditHold_AppliesDeferredReservationOnce(t *testing.T) {
	distributorID := uuid.New()
	repo := newFakeOrderRepo()
	order := &models.Order{
		ID:             uuid.New(),
		DistributorID:  distributorID,
		Status:         enums.OrderStatusSubmitted,
		TotalAmount:    dec("100"),
		CreditHoldFlag: true,
	}
	repo.orders[order.ID] = order
	crediter := &fakeCredit{
		activeHold: &models.CreditHold{ID: uuid.New(), OrderID: order.ID},
	}
	svc, _ := newTestService(t, repo, crediter)

	got, err := svc.ReleaseCreditHold(context.Background(), adminActor(), order.ID)
	require.NoError(t, err)
	assert.False(t, got.CreditHoldFlag)
	require.Len(t, crediter.reserved, 1)
	assert.True(t, crediter.reserved[0].Equal(dec("100")))

	// Flag is already cleared, second release finds no hold.
	_, err = svc.ReleaseCreditHold(context.Background(), adminActor(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Len(t, crediter.reserved, 1)
}

func TestReleaseCreditHold_AdminOnly(t *testing.T) {
	distributorID := uuid.New()
	svc, _ := newTestService(t, newFakeOrderRepo(), &fakeCredit{})

	_, err := svc.ReleaseCreditHold(context.Background(), distributorActor(distributorID), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
