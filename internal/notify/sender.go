package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/varunnair-io/distriflow-backend/pkg/logger"
)

// HoldNotice carries the details announced when a credit hold is placed or
// released.
type HoldNotice struct {
	DistributorID uuid.UUID
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Reason        string
}

// Sender delivers operator notifications (email/SMS). Implementations must
// swallow their own failures: a broken notification channel never blocks
// order or credit flow.
type Sender interface {
	HoldPlaced(ctx context.Context, notice HoldNotice)
	HoldReleased(ctx context.Context, notice HoldNotice)
}

type logSender struct {
	logg *logger.Logger
}

// NewLogSender returns a sender that records notices to the structured log.
// The production deployment swaps in the transactional-mail implementation.
func NewLogSender(logg *logger.Logger) Sender {
	return &logSender{logg: logg}
}

func (s *logSender) HoldPlaced(ctx context.Context, notice HoldNotice) {
	s.emit(ctx, "credit hold placed", notice)
}

func (s *logSender) HoldReleased(ctx context.Context, notice HoldNotice) {
	s.emit(ctx, "credit hold released", notice)
}

func (s *logSender) emit(ctx context.Context, msg string, notice HoldNotice) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"distributor_id": notice.DistributorID.String(),
		"order_id":       notice.OrderID.String(),
		"amount":         notice.Amount.String(),
		"reason":         notice.Reason,
	})
	s.logg.Info(logCtx, msg)
}

// Nop returns a sender that discards everything. Used in tests.
func Nop() Sender {
	return nopSender{}
}

type nopSender struct{}

func (nopSender) HoldPlaced(context.Context, HoldNotice)   {}
func (nopSender) HoldReleased(context.Context, HoldNotice) {}
