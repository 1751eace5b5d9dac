package outbox

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
)

// DispatchTrigger requests a best-effort dispatch pass. Implementations must
// never block the caller.
type DispatchTrigger interface {
	TriggerAsync(ctx context.Context)
}

type Service struct {
	repo    *Repository
	logg    *logger.Logger
	trigger DispatchTrigger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// SetTrigger wires the dispatcher after construction. The dispatcher drains
// this outbox, so the dependency runs in both directions and one side has to
// be attached late.
func (s *Service) SetTrigger(trigger DispatchTrigger) {
	s.trigger = trigger
}

// Enqueue inserts one pending event inside the caller's transaction. Callers
// kick a dispatch pass with Kick once that transaction commits; a pass started
// earlier cannot see the uncommitted row.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.IntegrationEventType, payload any) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !eventType.IsValid() {
		return errors.New("invalid event type")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := models.IntegrationEvent{
		EventType: eventType,
		Payload:   json.RawMessage(body),
		Status:    enums.EventStatusPending,
		Attempts:  0,
	}
	if err := s.repo.Insert(tx, &event); err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":   event.ID.String(),
			"event_type": eventType,
		})
		s.logg.Info(logCtx, "integration event queued")
	}
	return nil
}

// Kick requests an immediate dispatch pass for previously enqueued events.
// Call it after the enqueuing transaction commits. Trigger failures are
// logged, never surfaced: outbound notification must not affect the
// committed work.
func (s *Service) Kick(ctx context.Context) {
	trigger := s.trigger
	if trigger == nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "dispatch trigger not wired; relying on scheduled drain")
		}
		return
	}
	defer func() {
		if r := recover(); r != nil && s.logg != nil {
			s.logg.Warn(ctx, "dispatch trigger panicked; relying on scheduled drain")
		}
	}()
	trigger.TriggerAsync(context.WithoutCancel(ctx))
}

// Drain returns up to limit pending events in enqueue order. This is the only
// read path the dispatcher uses.
func (s *Service) Drain(ctx context.Context, limit int) ([]models.IntegrationEvent, error) {
	return s.repo.FetchPending(ctx, limit)
}

// MarkCompleted moves an event to its terminal state.
func (s *Service) MarkCompleted(ctx context.Context, event *models.IntegrationEvent) error {
	return s.repo.MarkCompleted(ctx, event.ID)
}

// IncrementAttempts bumps the counter for all events touched by a pass.
func (s *Service) IncrementAttempts(ctx context.Context, events []models.IntegrationEvent) error {
	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}
	return s.repo.IncrementAttempts(ctx, ids)
}
