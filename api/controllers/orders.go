package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/varunnair-io/distriflow-backend/api/middleware"
	"github.com/varunnair-io/distriflow-backend/api/responses"
	"github.com/varunnair-io/distriflow-backend/api/validators"
	"github.com/varunnair-io/distriflow-backend/internal/orders"
	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/pagination"
)

type createOrderRequest struct {
	DistributorID *uuid.UUID               `json:"distributor_id"`
	RetailerID    *uuid.UUID               `json:"retailer_id"`
	SalesRepID    *uuid.UUID               `json:"sales_rep_id"`
	Currency      string                   `json:"currency"`
	Items         []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createOrderItemRequest struct {
	ProductID      uuid.UUID       `json:"product_id" validate:"required"`
	Quantity       int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price" validate:"required"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	SchemeID       *uuid.UUID      `json:"scheme_id"`
}

type transitionOrderRequest struct {
	Status  string  `json:"status" validate:"required"`
	Comment *string `json:"comment"`
}

type createReturnRequest struct {
	Reason       string          `json:"reason" validate:"required"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

type orderListResponse struct {
	Items      []models.Order `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderCreate places a new order for the actor's distributor scope.
func OrderCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.CreateOrderInput{
			DistributorID: req.DistributorID,
			RetailerID:    req.RetailerID,
			SalesRepID:    req.SalesRepID,
			Currency:      strings.TrimSpace(req.Currency),
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, orders.CreateOrderItemInput{
				ProductID:      item.ProductID,
				Quantity:       item.Quantity,
				UnitPrice:      item.UnitPrice,
				DiscountAmount: item.DiscountAmount,
				SchemeID:       item.SchemeID,
			})
		}

		order, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// OrderList pages the actor's orders, optionally filtered by status.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.ListInput{
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			input.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("distributor_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid distributor id"))
				return
			}
			input.DistributorID = &id
		}

		items, next, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if items == nil {
			items = []models.Order{}
		}
		responses.WriteSuccess(w, orderListResponse{Items: items, NextCursor: next})
	}
}

// OrderDetail returns one order the actor may see.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderTransition moves an order through the lifecycle state machine.
func OrderTransition(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		order, err := svc.Transition(r.Context(), middleware.ActorFromContext(r.Context()), orderID, target, req.Comment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderReturn raises a return against a delivered order.
func OrderReturn(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createReturnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ret, err := svc.CreateReturn(r.Context(), middleware.ActorFromContext(r.Context()), orders.CreateReturnInput{
			OrderID:      orderID,
			Reason:       strings.TrimSpace(req.Reason),
			RefundAmount: req.RefundAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ret)
	}
}

// OrderReleaseHold lifts a credit hold and applies the deferred reservation.
func OrderReleaseHold(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ReleaseCreditHold(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
