package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/varunnair-io/distriflow-backend/api/middleware"
	"github.com/varunnair-io/distriflow-backend/api/responses"
	"github.com/varunnair-io/distriflow-backend/api/validators"
	"github.com/varunnair-io/distriflow-backend/internal/credit"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
)

type recordPaymentRequest struct {
	DistributorID *uuid.UUID      `json:"distributor_id"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	ReceiptRef    string          `json:"receipt_ref" validate:"required"`
	PaymentDate   *time.Time      `json:"payment_date"`
	Notes         *string         `json:"notes"`
}

type updateCreditLimitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit" validate:"required"`
}

// CreditRecordPayment books a collected payment against the ledger.
func CreditRecordPayment(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.RecordPayment(r.Context(), middleware.ActorFromContext(r.Context()), credit.RecordPaymentInput{
			DistributorID: req.DistributorID,
			Amount:        req.Amount,
			ReceiptRef:    strings.TrimSpace(req.ReceiptRef),
			PaymentDate:   req.PaymentDate,
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// CreditSummary returns the distributor's current credit position.
func CreditSummary(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requested, err := parseOptionalDistributorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.GetSummary(r.Context(), middleware.ActorFromContext(r.Context()), requested)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CreditAging buckets the distributor's invoice debits by days past due.
func CreditAging(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requested, err := parseOptionalDistributorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		aging, err := svc.GetAging(r.Context(), middleware.ActorFromContext(r.Context()), requested)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, aging)
	}
}

// CreditUpdateLimit sets a distributor's credit limit. Admin only.
func CreditUpdateLimit(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "distributorId"))
		distributorID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid distributor id"))
			return
		}

		var req updateCreditLimitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.UpdateLimit(r.Context(), middleware.ActorFromContext(r.Context()), distributorID, req.CreditLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"distributor_id": distributorID.String(),
			"credit_limit":   req.CreditLimit.String(),
		})
	}
}

func parseOptionalDistributorID(r *http.Request) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("distributor_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid distributor id")
	}
	return &id, nil
}
