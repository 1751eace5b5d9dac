package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
)

// Recorder accepts fire-and-forget audit records. Record never blocks and
// never returns an error to the caller.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Entry describes one mutating action.
type Entry struct {
	Action    string
	Resource  string
	UserID    *uuid.UUID
	Metadata  map[string]any
	IPAddress string
}

type service struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewService returns the default database-backed recorder.
func NewService(db *gorm.DB, logg *logger.Logger) Recorder {
	return &service{db: db, logg: logg}
}

// Record persists the entry on a detached goroutine. Failures are logged
// centrally and never reach the caller.
func (s *service) Record(ctx context.Context, entry Entry) {
	bg := context.WithoutCancel(ctx)
	go func() {
		row := models.AuditLog{
			Action: entry.Action,
			UserID: entry.UserID,
		}
		if entry.Resource != "" {
			row.Resource = &entry.Resource
		}
		if entry.IPAddress != "" {
			row.IPAddress = &entry.IPAddress
		}
		if len(entry.Metadata) > 0 {
			if raw, err := json.Marshal(entry.Metadata); err == nil {
				row.Metadata = raw
			}
		}
		if err := s.db.WithContext(bg).Create(&row).Error; err != nil && s.logg != nil {
			logCtx := s.logg.WithField(bg, "action", entry.Action)
			s.logg.Error(logCtx, "audit record write failed", err)
		}
	}()
}

// Nop returns a recorder that discards everything. Used in tests.
func Nop() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Entry) {}
