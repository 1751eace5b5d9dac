package credit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

// Repository manages persistence for distributors, ledger entries and holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindDistributor(ctx context.Context, id uuid.UUID) (*models.Distributor, error)
	FindDistributorForUpdate(ctx context.Context, id uuid.UUID) (*models.Distributor, error)
	UpdateDistributor(ctx context.Context, id uuid.UUID, updates map[string]any) error
	LatestEntry(ctx context.Context, distributorID uuid.UUID) (*models.CreditLedgerEntry, error)
	CreateEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
	ListInvoiceDebits(ctx context.Context, distributorID uuid.UUID) ([]models.CreditLedgerEntry, error)
	CreateHold(ctx context.Context, hold *models.CreditHold) error
	FindActiveHoldByOrder(ctx context.Context, orderID uuid.UUID) (*models.CreditHold, error)
	ReleaseHold(ctx context.Context, holdID uuid.UUID, releasedAt time.Time) error
	CountActiveHolds(ctx context.Context, distributorID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindDistributor(ctx context.Context, id uuid.UUID) (*models.Distributor, error) {
	var distributor models.Distributor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&distributor).Error; err != nil {
		return nil, err
	}
	return &distributor, nil
}

// FindDistributorForUpdate takes a row lock so balance mutation and ledger
// access act as one unit under concurrent writers.
func (r *repository) FindDistributorForUpdate(ctx context.Context, id uuid.UUID) (*models.Distributor, error) {
	var distributor models.Distributor
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&distributor).Error; err != nil {
		return nil, err
	}
	return &distributor, nil
}

func (r *repository) UpdateDistributor(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Distributor{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) LatestEntry(ctx context.Context, distributorID uuid.UUID) (*models.CreditLedgerEntry, error) {
	var entry models.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("distributor_id = ?", distributorID).
		Order("created_at DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListInvoiceDebits(ctx context.Context, distributorID uuid.UUID) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("distributor_id = ? AND txn_type = ? AND debit > 0", distributorID, enums.LedgerTxnInvoice).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) CreateHold(ctx context.Context, hold *models.CreditHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) FindActiveHoldByOrder(ctx context.Context, orderID uuid.UUID) (*models.CreditHold, error) {
	var hold models.CreditHold
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND released_at IS NULL", orderID).
		First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) ReleaseHold(ctx context.Context, holdID uuid.UUID, releasedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CreditHold{}).
		Where("id = ?", holdID).
		Update("released_at", releasedAt).Error
}

func (r *repository) CountActiveHolds(ctx context.Context, distributorID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CreditHold{}).
		Where("distributor_id = ? AND released_at IS NULL", distributorID).
		Count(&count).Error
	return count, err
}
