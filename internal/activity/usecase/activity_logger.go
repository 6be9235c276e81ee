package usecase

import (
	"encoding/json"
	"time"

	"dealflow-backend/internal/activity/domain"
	"dealflow-backend/internal/activity/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityLogger records one structured audit entry per pipeline event. A
// failed write is logged but never propagated: the audit trail must not be
// able to fail the pipeline it observes.
type ActivityLogger struct {
	repo   repository.ActivityRepository
	logger *zap.Logger
}

func NewActivityLogger(repo repository.ActivityRepository, logger *zap.Logger) *ActivityLogger {
	return &ActivityLogger{repo: repo, logger: logger.Named("activity")}
}

func (l *ActivityLogger) Record(userID, activityType string, status domain.ActivityStatus, message, correlationID string, metadata map[string]interface{}) {
	encoded := ""
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			l.logger.Warn("unable to encode activity metadata", zap.Error(err))
		} else {
			encoded = string(raw)
		}
	}

	entry := &domain.ActivityLog{
		ID:            uuid.New().String(),
		UserID:        userID,
		ActivityType:  activityType,
		Status:        status,
		Message:       message,
		CorrelationID: correlationID,
		Metadata:      encoded,
		CreatedAt:     time.Now(),
	}

	if err := l.repo.Create(entry); err != nil {
		l.logger.Error("unable to write activity log",
			zap.String("activity_type", activityType),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (l *ActivityLogger) List(userID string, limit, offset int) ([]domain.ActivityLog, error) {
	return l.repo.ListByUser(userID, limit, offset)
}

func (l *ActivityLogger) ListByCorrelation(userID, correlationID string) ([]domain.ActivityLog, error) {
	return l.repo.ListByCorrelationID(userID, correlationID)
}
