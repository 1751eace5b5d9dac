package integrations

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/internal/audit"
	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/db"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
	"github.com/varunnair-io/distriflow-backend/pkg/pagination"
)

// secretBytes is the entropy of a generated webhook signing secret.
const secretBytes = 32

// Service manages connectors and webhook subscriptions. All operations are
// admin only.
type Service interface {
	RegisterWebhook(ctx context.Context, actor scope.Actor, input RegisterWebhookInput) (*models.IntegrationWebhook, error)
	ListWebhooks(ctx context.Context, actor scope.Actor, connector *string) ([]models.IntegrationWebhook, error)
	SetWebhookActive(ctx context.Context, actor scope.Actor, webhookID uuid.UUID, active bool) (*models.IntegrationWebhook, error)
	ListDeliveries(ctx context.Context, actor scope.Actor, input ListDeliveriesInput) ([]models.WebhookDelivery, string, error)
}

// RegisterWebhookInput subscribes one endpoint to one event type under a
// connector. The connector is created on first use. A missing Secret is
// replaced by a generated one; CredentialsRef is stored on the connector.
type RegisterWebhookInput struct {
	Connector      string
	EventType      string
	TargetURL      string
	Secret         *string
	CredentialsRef *string
}

// ListDeliveriesInput narrows the delivery history listing.
type ListDeliveriesInput struct {
	WebhookID  *uuid.UUID
	EventID    *uuid.UUID
	Pagination pagination.Params
}

type service struct {
	repo    Repository
	auditor audit.Recorder
}

// NewService wires the integrations service with the required dependencies.
func NewService(repo Repository, auditor audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("integrations repository required")
	}
	if auditor == nil {
		auditor = audit.Nop()
	}
	return &service{repo: repo, auditor: auditor}, nil
}

// RegisterWebhook creates the subscription and mints its signing secret. The
// secret is returned once on this response and never exposed again.
func (s *service) RegisterWebhook(ctx context.Context, actor scope.Actor, input RegisterWebhookInput) (*models.IntegrationWebhook, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if input.Connector == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "connector required")
	}
	eventType, err := enums.ParseIntegrationEventType(input.EventType)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if err := validateTargetURL(input.TargetURL); err != nil {
		return nil, err
	}

	integration, err := s.findOrCreateIntegration(ctx, input.Connector, input.CredentialsRef)
	if err != nil {
		return nil, err
	}

	var secret string
	if input.Secret != nil && *input.Secret != "" {
		secret = *input.Secret
	} else {
		secret, err = generateSecret()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate webhook secret")
		}
	}

	webhook := &models.IntegrationWebhook{
		IntegrationID: integration.ID,
		EventType:     eventType,
		TargetURL:     input.TargetURL,
		Secret:        secret,
		IsActive:      true,
	}
	if err := s.repo.CreateWebhook(ctx, webhook); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "webhook already registered for this connector, event and url")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create webhook")
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "integration.register_webhook",
		Resource: webhook.ID.String(),
		UserID:   &actor.UserID,
		Metadata: map[string]any{
			"connector":  input.Connector,
			"event_type": string(eventType),
			"target_url": input.TargetURL,
		},
	})
	return webhook, nil
}

func (s *service) findOrCreateIntegration(ctx context.Context, connector string, credentialsRef *string) (*models.Integration, error) {
	integration, err := s.repo.FindIntegrationByConnector(ctx, connector)
	if err == nil {
		return integration, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load integration")
	}

	integration = &models.Integration{Connector: connector, CredentialsRef: credentialsRef}
	if err := s.repo.CreateIntegration(ctx, integration); err != nil {
		// Concurrent registration for the same connector; reread the winner.
		if db.IsUniqueViolation(err) {
			return s.repo.FindIntegrationByConnector(ctx, connector)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create integration")
	}
	return integration, nil
}

func (s *service) ListWebhooks(ctx context.Context, actor scope.Actor, connector *string) ([]models.IntegrationWebhook, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}

	var integrationID *uuid.UUID
	if connector != nil {
		integration, err := s.repo.FindIntegrationByConnector(ctx, *connector)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "connector not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load integration")
		}
		integrationID = &integration.ID
	}

	webhooks, err := s.repo.ListWebhooks(ctx, integrationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhooks")
	}
	// Secrets never leave the registration response.
	for i := range webhooks {
		webhooks[i].Secret = ""
	}
	return webhooks, nil
}

func (s *service) SetWebhookActive(ctx context.Context, actor scope.Actor, webhookID uuid.UUID, active bool) (*models.IntegrationWebhook, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}

	webhook, err := s.repo.FindWebhook(ctx, webhookID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook")
	}

	if err := s.repo.UpdateWebhook(ctx, webhookID, map[string]any{"is_active": active}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update webhook")
	}
	webhook.IsActive = active
	webhook.Secret = ""

	s.auditor.Record(ctx, audit.Entry{
		Action:   "integration.set_webhook_active",
		Resource: webhookID.String(),
		UserID:   &actor.UserID,
		Metadata: map[string]any{"active": active},
	})
	return webhook, nil
}

func (s *service) ListDeliveries(ctx context.Context, actor scope.Actor, input ListDeliveriesInput) ([]models.WebhookDelivery, string, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, "", err
	}

	rows, err := s.repo.ListDeliveries(ctx, DeliveryFilter{
		WebhookID:  input.WebhookID,
		EventID:    input.EventID,
		Pagination: input.Pagination,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliveries")
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

func validateTargetURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "target url must be absolute")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return pkgerrors.New(pkgerrors.CodeValidation, "target url must use http or https")
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
