package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends one pending event inside the caller's transaction.
func (r *Repository) Insert(tx *gorm.DB, event *models.IntegrationEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// FetchPending returns up to limit pending events, oldest first.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]models.IntegrationEvent, error) {
	var rows []models.IntegrationEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.EventStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkCompleted moves an event to its terminal state.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.IntegrationEvent{}).
		Where("id = ?", id).
		Update("status", enums.EventStatusCompleted).Error
}

// IncrementAttempts bumps the attempt counter for every event touched by a pass.
func (r *Repository) IncrementAttempts(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.IntegrationEvent{}).
		Where("id IN ?", ids).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

// FindByID loads a single event.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.IntegrationEvent, error) {
	var event models.IntegrationEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
