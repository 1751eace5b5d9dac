package integrations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	"github.com/varunnair-io/distriflow-backend/pkg/pagination"
)

// DeliveryFilter narrows the delivery history listing.
type DeliveryFilter struct {
	WebhookID  *uuid.UUID
	EventID    *uuid.UUID
	Pagination pagination.Params
}

// Repository manages connectors, webhook subscriptions and delivery history.
type Repository interface {
	FindIntegrationByConnector(ctx context.Context, connector string) (*models.Integration, error)
	CreateIntegration(ctx context.Context, integration *models.Integration) error
	CreateWebhook(ctx context.Context, webhook *models.IntegrationWebhook) error
	FindWebhook(ctx context.Context, id uuid.UUID) (*models.IntegrationWebhook, error)
	ListWebhooks(ctx context.Context, integrationID *uuid.UUID) ([]models.IntegrationWebhook, error)
	ListActiveWebhooks(ctx context.Context, eventType enums.IntegrationEventType) ([]models.IntegrationWebhook, error)
	UpdateWebhook(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]models.WebhookDelivery, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an integrations repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindIntegrationByConnector(ctx context.Context, connector string) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).
		Where("connector = ?", connector).
		First(&integration).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *repository) CreateIntegration(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Create(integration).Error
}

func (r *repository) CreateWebhook(ctx context.Context, webhook *models.IntegrationWebhook) error {
	return r.db.WithContext(ctx).Create(webhook).Error
}

func (r *repository) FindWebhook(ctx context.Context, id uuid.UUID) (*models.IntegrationWebhook, error) {
	var webhook models.IntegrationWebhook
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&webhook).Error; err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (r *repository) ListWebhooks(ctx context.Context, integrationID *uuid.UUID) ([]models.IntegrationWebhook, error) {
	query := r.db.WithContext(ctx).Model(&models.IntegrationWebhook{})
	if integrationID != nil {
		query = query.Where("integration_id = ?", *integrationID)
	}
	var webhooks []models.IntegrationWebhook
	if err := query.Order("created_at ASC").Find(&webhooks).Error; err != nil {
		return nil, err
	}
	return webhooks, nil
}

// ListActiveWebhooks returns the subscribers a dispatch pass must reach for
// one event type.
func (r *repository) ListActiveWebhooks(ctx context.Context, eventType enums.IntegrationEventType) ([]models.IntegrationWebhook, error) {
	var webhooks []models.IntegrationWebhook
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", eventType, true).
		Order("created_at ASC").
		Find(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *repository) UpdateWebhook(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.IntegrationWebhook{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repository) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]models.WebhookDelivery, error) {
	query := r.db.WithContext(ctx).Model(&models.WebhookDelivery{})
	if filter.WebhookID != nil {
		query = query.Where("webhook_id = ?", *filter.WebhookID)
	}
	if filter.EventID != nil {
		query = query.Where("event_id = ?", *filter.EventID)
	}

	cursor, err := pagination.ParseCursor(filter.Pagination.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var deliveries []models.WebhookDelivery
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Pagination.Limit)).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
