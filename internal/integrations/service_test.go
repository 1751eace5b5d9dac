package integrations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/internal/audit"
	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
)

type fakeRepo struct {
	integrations map[string]*models.Integration
	webhooks     map[uuid.UUID]*models.IntegrationWebhook
	deliveries   []models.WebhookDelivery

	webhookUpdates map[uuid.UUID][]map[string]any
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		integrations:   map[string]*models.Integration{},
		webhooks:       map[uuid.UUID]*models.IntegrationWebhook{},
		webhookUpdates: map[uuid.UUID][]map[string]any{},
	}
}

func (f *fakeRepo) FindIntegrationByConnector(ctx context.Context, connector string) (*models.Integration, error) {
	integration, ok := f.integrations[connector]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return integration, nil
}

func (f *fakeRepo) CreateIntegration(ctx context.Context, integration *models.Integration) error {
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	f.integrations[integration.Connector] = integration
	return nil
}

func (f *fakeRepo) CreateWebhook(ctx context.Context, webhook *models.IntegrationWebhook) error {
	if webhook.ID == uuid.Nil {
		webhook.ID = uuid.New()
	}
	f.webhooks[webhook.ID] = webhook
	return nil
}

func (f *fakeRepo) FindWebhook(ctx context.Context, id uuid.UUID) (*models.IntegrationWebhook, error) {
	webhook, ok := f.webhooks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *webhook
	return &copied, nil
}

func (f *fakeRepo) ListWebhooks(ctx context.Context, integrationID *uuid.UUID) ([]models.IntegrationWebhook, error) {
	var out []models.IntegrationWebhook
	for _, webhook := range f.webhooks {
		if integrationID != nil && webhook.IntegrationID != *integrationID {
			continue
		}
		out = append(out, *webhook)
	}
	return out, nil
}

func (f *fakeRepo) ListActiveWebhooks(ctx context.Context, eventType enums.IntegrationEventType) ([]models.IntegrationWebhook, error) {
	var out []models.IntegrationWebhook
	for _, webhook := range f.webhooks {
		if webhook.IsActive && webhook.EventType == eventType {
			out = append(out, *webhook)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateWebhook(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	f.webhookUpdates[id] = append(f.webhookUpdates[id], updates)
	if active, ok := updates["is_active"].(bool); ok {
		if webhook, found := f.webhooks[id]; found {
			webhook.IsActive = active
		}
	}
	return nil
}

func (f *fakeRepo) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	f.deliveries = append(f.deliveries, *delivery)
	return nil
}

func (f *fakeRepo) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]models.WebhookDelivery, error) {
	return f.deliveries, nil
}

func adminActor() scope.Actor {
	return scope.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func newTestService(t *testing.T, repo *fakeRepo) Service {
	t.Helper()
	svc, err := NewService(repo, audit.Nop())
	require.NoError(t, err)
	return svc
}

func TestRegisterWebhook_CreatesConnectorAndSecret(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	webhook, err := svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.created",
		TargetURL: "https://erp.example.com/hooks/orders",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.EventOrderCreated, webhook.EventType)
	assert.True(t, webhook.IsActive)
	assert.Len(t, webhook.Secret, 64)

	integration, ok := repo.integrations["erp-main"]
	require.True(t, ok)
	assert.Equal(t, integration.ID, webhook.IntegrationID)

	// Second webhook under the same connector reuses it.
	second, err := svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.shipped",
		TargetURL: "https://erp.example.com/hooks/shipments",
	})
	require.NoError(t, err)
	assert.Equal(t, integration.ID, second.IntegrationID)
	assert.NotEqual(t, webhook.Secret, second.Secret)
}

func TestRegisterWebhook_KeepsSuppliedSecretAndCredentialsRef(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	secret := "whsec_supplied"
	credRef := "vault://erp-main/api-key"
	webhook, err := svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector:      "erp-main",
		EventType:      "order.created",
		TargetURL:      "https://erp.example.com/hooks/orders",
		Secret:         &secret,
		CredentialsRef: &credRef,
	})
	require.NoError(t, err)
	assert.Equal(t, secret, webhook.Secret)

	integration := repo.integrations["erp-main"]
	require.NotNil(t, integration)
	require.NotNil(t, integration.CredentialsRef)
	assert.Equal(t, credRef, *integration.CredentialsRef)
}

func TestRegisterWebhook_Validation(t *testing.T) {
	svc := newTestService(t, newFakeRepo())

	_, err := svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.exploded",
		TargetURL: "https://erp.example.com/hooks",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.created",
		TargetURL: "ftp://erp.example.com/hooks",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		EventType: "order.created",
		TargetURL: "https://erp.example.com/hooks",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRegisterWebhook_AdminOnly(t *testing.T) {
	svc := newTestService(t, newFakeRepo())
	distributorID := uuid.New()
	actor := scope.Actor{UserID: uuid.New(), Role: enums.RoleDistributor, DistributorID: &distributorID}

	_, err := svc.RegisterWebhook(context.Background(), actor, RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.created",
		TargetURL: "https://erp.example.com/hooks",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListWebhooks_HidesSecrets(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	_, err := svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.created",
		TargetURL: "https://erp.example.com/hooks",
	})
	require.NoError(t, err)

	webhooks, err := svc.ListWebhooks(context.Background(), adminActor(), nil)
	require.NoError(t, err)
	require.Len(t, webhooks, 1)
	assert.Empty(t, webhooks[0].Secret)
}

func TestSetWebhookActive_Toggles(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	webhook, err := svc.RegisterWebhook(context.Background(), adminActor(), RegisterWebhookInput{
		Connector: "erp-main",
		EventType: "order.created",
		TargetURL: "https://erp.example.com/hooks",
	})
	require.NoError(t, err)

	got, err := svc.SetWebhookActive(context.Background(), adminActor(), webhook.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Empty(t, got.Secret)
	assert.False(t, repo.webhooks[webhook.ID].IsActive)

	_, err = svc.SetWebhookActive(context.Background(), adminActor(), uuid.New(), false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
