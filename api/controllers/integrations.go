package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/varunnair-io/distriflow-backend/api/middleware"
	"github.com/varunnair-io/distriflow-backend/api/responses"
	"github.com/varunnair-io/distriflow-backend/api/validators"
	"github.com/varunnair-io/distriflow-backend/internal/integrations"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/pagination"
)

type registerWebhookRequest struct {
	Connector      string  `json:"connector" validate:"required"`
	EventType      string  `json:"event_type" validate:"required"`
	TargetURL      string  `json:"target_url" validate:"required,url"`
	Secret         *string `json:"secret"`
	CredentialsRef *string `json:"credentials_ref"`
}

type setWebhookActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type deliveryListResponse struct {
	Items      []models.WebhookDelivery `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// WebhookRegister subscribes an endpoint to an event type. The signing
// secret appears only in this response.
func WebhookRegister(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		webhook, err := svc.RegisterWebhook(r.Context(), middleware.ActorFromContext(r.Context()), integrations.RegisterWebhookInput{
			Connector:      strings.TrimSpace(req.Connector),
			EventType:      strings.TrimSpace(req.EventType),
			TargetURL:      strings.TrimSpace(req.TargetURL),
			Secret:         req.Secret,
			CredentialsRef: req.CredentialsRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, webhook)
	}
}

// WebhookList returns registered webhooks, optionally for one connector.
func WebhookList(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var connector *string
		if raw := strings.TrimSpace(r.URL.Query().Get("connector")); raw != "" {
			connector = &raw
		}

		webhooks, err := svc.ListWebhooks(r.Context(), middleware.ActorFromContext(r.Context()), connector)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if webhooks == nil {
			webhooks = []models.IntegrationWebhook{}
		}
		responses.WriteSuccess(w, webhooks)
	}
}

// WebhookSetActive pauses or resumes one subscription.
func WebhookSetActive(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "webhookId"))
		webhookID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook id"))
			return
		}

		var req setWebhookActiveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		webhook, err := svc.SetWebhookActive(r.Context(), middleware.ActorFromContext(r.Context()), webhookID, *req.Active)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhook)
	}
}

// DeliveryList pages the webhook delivery audit trail.
func DeliveryList(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := integrations.ListDeliveriesInput{
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("webhook_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook id"))
				return
			}
			input.WebhookID = &id
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("event_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id"))
				return
			}
			input.EventID = &id
		}

		items, next, err := svc.ListDeliveries(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if items == nil {
			items = []models.WebhookDelivery{}
		}
		responses.WriteSuccess(w, deliveryListResponse{Items: items, NextCursor: next})
	}
}
